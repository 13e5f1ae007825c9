package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		WorkDir          string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Income   IncomeConfig
	}

	ServerConfig struct {
		Host            string
		OpsAddr         string
		DebugHost       string
		OpsToken        string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	IncomeConfig struct {
		Workers            int
		RewardDelayDays    int
		WithdrawMin        string
		WithdrawFeePercent string
		ProfitSchedule     string
		MatrixSchedule     string
		RankSchedule       string
		TeamSchedule       string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration from the environment (prefixed by $ENV) and the optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Payouts")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("secretKey", "x7q!9r)kz#m2w+4t=vb&l0ep(c$s8h^u)d6y@3f*n1g5j")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Payouts <noreply@localhost>")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverOpsAddr", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverOpsToken", "")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "payouts")
	v.SetDefault("dbUser", "payouts")
	v.SetDefault("dbPassword", "payouts")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("incomeWorkers", 8)
	v.SetDefault("incomeRewardDelayDays", 30)
	v.SetDefault("incomeWithdrawMin", "10")
	v.SetDefault("incomeWithdrawFeePercent", "5")
	v.SetDefault("incomeProfitSchedule", "0 0 * * *")
	v.SetDefault("incomeMatrixSchedule", "0 1 * * *")
	v.SetDefault("incomeRankSchedule", "0 2 * * *")
	v.SetDefault("incomeTeamSchedule", "0 3 * * 0")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		WorkDir:          workDir,
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			OpsAddr:         v.GetString("serverOpsAddr"),
			DebugHost:       v.GetString("serverDebugHost"),
			OpsToken:        v.GetString("serverOpsToken"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Income: IncomeConfig{
			Workers:            v.GetInt("incomeWorkers"),
			RewardDelayDays:    v.GetInt("incomeRewardDelayDays"),
			WithdrawMin:        v.GetString("incomeWithdrawMin"),
			WithdrawFeePercent: v.GetString("incomeWithdrawFeePercent"),
			ProfitSchedule:     v.GetString("incomeProfitSchedule"),
			MatrixSchedule:     v.GetString("incomeMatrixSchedule"),
			RankSchedule:       v.GetString("incomeRankSchedule"),
			TeamSchedule:       v.GetString("incomeTeamSchedule"),
		},
	}
}
