/**
 * OWASP ZAP 引擎客户端
 */
package zap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Alert 引擎返回的单条告警详情（core/view/alert、core/view/alerts 共用）
type Alert struct {
	ID         string            `json:"id"`
	Name       string            `json:"alert"`
	Risk       string            `json:"risk"`
	Confidence string            `json:"confidence"`
	URL        string            `json:"url"`
	Param      string            `json:"param"`
	Evidence   string            `json:"evidence"`
	Solution   string            `json:"solution"`
	Reference  string            `json:"reference"`
	CweID      string            `json:"cweid"`
	Tags       map[string]string `json:"tags"`
}

// Client ZAP JSON API 的薄封装。
// 每次调用固定 60s 超时；客户端自己不做重试，重试/失败语义统一由上层 orchestrator 决定。
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// get 发起一次 GET 调用并把 JSON 解到 out。
// 传输错误 -> KindUnreachable；非 2xx 或响应不可解析 -> KindRejected。
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &Error{Kind: KindRejected, Op: op, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindUnreachable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindUnreachable, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 引擎的错误响应形如 {"code":"does_not_exist","message":"Does Not Exist"}
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &Error{Kind: KindRejected, Op: op, Msg: fmt.Sprintf("ZAP API Error: %s", msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindRejected, Op: op, Msg: "invalid engine response", Err: err}
	}
	return nil
}

// StartSpider 启动爬虫，返回引擎侧 spider 任务 id
func (c *Client) StartSpider(ctx context.Context, target string) (string, error) {
	var resp struct {
		Scan string `json:"scan"`
	}
	err := c.get(ctx, "start_spider", "/JSON/spider/action/scan/",
		url.Values{"url": {target}}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Scan, nil
}

// SpiderStatus 查询爬虫进度 0..100
func (c *Client) SpiderStatus(ctx context.Context, id string) (int, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.get(ctx, "spider_status", "/JSON/spider/view/status/",
		url.Values{"scanId": {id}}, &resp)
	if err != nil {
		return 0, err
	}
	return parseProgress(resp.Status), nil
}

// AccessURL 让引擎访问一次目标，把 URL 放进引擎的站点树（扫描前的准备动作）
func (c *Client) AccessURL(ctx context.Context, target string) error {
	return c.get(ctx, "access_url", "/JSON/core/action/accessUrl/",
		url.Values{"url": {target}, "followRedirects": {"true"}}, nil)
}

// StartScan 启动主动扫描，返回引擎侧任务句柄（ascan index）
func (c *Client) StartScan(ctx context.Context, target string) (string, error) {
	var resp struct {
		Scan string `json:"scan"`
	}
	err := c.get(ctx, "start_scan", "/JSON/ascan/action/scan/",
		url.Values{"url": {target}}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Scan, nil
}

// ScanStatus 查询扫描进度 0..100
func (c *Client) ScanStatus(ctx context.Context, job string) (int, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.get(ctx, "scan_status", "/JSON/ascan/view/status/",
		url.Values{"scanId": {job}}, &resp)
	if err != nil {
		return 0, err
	}
	return parseProgress(resp.Status), nil
}

// AlertIDs 该扫描任务当前已产生的全部告警 id。
// 引擎有时返回数字有时返回字符串，这里统一转成 string。
func (c *Client) AlertIDs(ctx context.Context, job string) ([]string, error) {
	var resp struct {
		AlertsIds []any `json:"alertsIds"`
	}
	err := c.get(ctx, "alert_ids", "/JSON/ascan/view/alertsIds/",
		url.Values{"scanId": {job}}, &resp)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.AlertsIds))
	for _, raw := range resp.AlertsIds {
		switch v := raw.(type) {
		case string:
			ids = append(ids, v)
		case float64:
			ids = append(ids, strconv.FormatInt(int64(v), 10))
		default:
			ids = append(ids, fmt.Sprint(v))
		}
	}
	return ids, nil
}

// Alert 按 id 取单条告警详情
func (c *Client) Alert(ctx context.Context, id string) (Alert, error) {
	var resp struct {
		Alert Alert `json:"alert"`
	}
	err := c.get(ctx, "alert", "/JSON/core/view/alert/",
		url.Values{"id": {id}}, &resp)
	if err != nil {
		return Alert{}, err
	}
	return resp.Alert, nil
}

// Alerts 全量告警列表，baseurl 非空时按目标前缀过滤
func (c *Client) Alerts(ctx context.Context, baseurl string) ([]Alert, error) {
	params := url.Values{}
	if baseurl != "" {
		params.Set("baseurl", baseurl)
	}
	var resp struct {
		Alerts []Alert `json:"alerts"`
	}
	err := c.get(ctx, "alerts", "/JSON/core/view/alerts/", params, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// AlertsSummary 按风险等级汇总的告警数
func (c *Client) AlertsSummary(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.get(ctx, "alerts_summary", "/JSON/core/view/alertsSummary/", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// StopScan 请求引擎停止指定扫描任务（幂等：对已结束的任务调用也安全）
func (c *Client) StopScan(ctx context.Context, job string) error {
	return c.get(ctx, "stop_scan", "/JSON/ascan/action/stop/",
		url.Values{"scanId": {job}}, nil)
}

// parseProgress 引擎把进度编码成字符串，解析失败按 0 处理
func parseProgress(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
