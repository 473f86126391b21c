package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Token         string
	Port          string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogLevel      string
	LockFile      string

	AdminID       int64
	AdminPassword string
	JWTSecret     string
	AdminTokenTTL time.Duration

	MiniAppUrl string
	PublicUrl  string
	WebappDir  string
	UploadsDir string

	OrderPrefix string

	Payment      PaymentConfig
	QRDir        string
	QRRemoveWait time.Duration

	Sync SyncConfig
}

// PaymentConfig holds the payee requisites printed into the payment QR.
type PaymentConfig struct {
	Name         string
	Account      string
	BankName     string
	BIC          string
	INN          string
	ManagerEmail string
}

type SyncConfig struct {
	RepoPath   string
	Branch     string
	ExportPath string
}

func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Token:         v.GetString("BOT_TOKEN"),
		Port:          v.GetString("PORT"),
		DBPath:        v.GetString("DB_PATH"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		LockFile:      v.GetString("LOCK_FILE"),

		AdminID:       v.GetInt64("ADMIN_ID"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		AdminTokenTTL: v.GetDuration("ADMIN_TOKEN_TTL"),

		MiniAppUrl: v.GetString("WEBAPP_URL"),
		PublicUrl:  v.GetString("PUBLIC_URL"),
		WebappDir:  v.GetString("WEBAPP_DIR"),
		UploadsDir: v.GetString("UPLOADS_DIR"),

		OrderPrefix: v.GetString("ORDER_PREFIX"),

		Payment: PaymentConfig{
			Name:         v.GetString("PAYMENT_NAME"),
			Account:      v.GetString("PAYMENT_ACCOUNT"),
			BankName:     v.GetString("PAYMENT_BANK"),
			BIC:          v.GetString("PAYMENT_BIK"),
			INN:          v.GetString("PAYMENT_INN"),
			ManagerEmail: v.GetString("MANAGER_EMAIL"),
		},
		QRDir:        v.GetString("QR_DIR"),
		QRRemoveWait: v.GetDuration("QR_REMOVE_AFTER"),

		Sync: SyncConfig{
			RepoPath:   v.GetString("SYNC_REPO_PATH"),
			Branch:     v.GetString("SYNC_BRANCH"),
			ExportPath: v.GetString("SYNC_EXPORT_PATH"),
		},
	}

	if cfg.Token == "" {
		return nil, errors.New("BOT_TOKEN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("DB_PATH", "./mactabak.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOCK_FILE", "./bot.lock")
	v.SetDefault("ADMIN_TOKEN_TTL", time.Hour)
	v.SetDefault("WEBAPP_URL", "https://artemperekrestov777-lab.github.io/webappmactabakshop/")
	v.SetDefault("PUBLIC_URL", "http://localhost:3000")
	v.SetDefault("WEBAPP_DIR", "./webapp")
	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("ORDER_PREFIX", "Т")
	v.SetDefault("PAYMENT_BANK", `МОСКОВСКИЙ ФИЛИАЛ АО КБ "МОДУЛЬБАНК"`)
	v.SetDefault("QR_DIR", "./data/qr")
	v.SetDefault("QR_REMOVE_AFTER", time.Minute)
	v.SetDefault("SYNC_BRANCH", "main")
	v.SetDefault("SYNC_EXPORT_PATH", "webapp/products.json")
}

// AdminPanelURL is the link handed out by /admin.
func (c *Config) AdminPanelURL(token string) string {
	return strings.TrimRight(c.PublicUrl, "/") + "/webapp/admin.html?token=" + token
}
