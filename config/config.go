package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config 全部来自环境变量（AWAST_ 前缀，比如 AWAST_ZAP_URL），带本地开发默认值
type Config struct {
	Listen string

	MysqlUser string
	MysqlPass string
	MysqlHost string
	MysqlDB   string

	RedisAddr string
	RedisPass string
	RedisDB   int

	ZapURL string
	ZapKey string

	FrontendURL string
}

func Load() Config {
	viper.SetEnvPrefix("AWAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("listen", ":5003")
	viper.SetDefault("mysql.user", "root")
	viper.SetDefault("mysql.pass", "123456")
	viper.SetDefault("mysql.host", "127.0.0.1")
	viper.SetDefault("mysql.db", "awast")
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.pass", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("zap.url", "http://127.0.0.1:8080")
	viper.SetDefault("zap.key", "changeme")
	viper.SetDefault("frontend.url", "http://localhost:5173")

	return Config{
		Listen:      viper.GetString("listen"),
		MysqlUser:   viper.GetString("mysql.user"),
		MysqlPass:   viper.GetString("mysql.pass"),
		MysqlHost:   viper.GetString("mysql.host"),
		MysqlDB:     viper.GetString("mysql.db"),
		RedisAddr:   viper.GetString("redis.addr"),
		RedisPass:   viper.GetString("redis.pass"),
		RedisDB:     viper.GetInt("redis.db"),
		ZapURL:      viper.GetString("zap.url"),
		ZapKey:      viper.GetString("zap.key"),
		FrontendURL: viper.GetString("frontend.url"),
	}
}
