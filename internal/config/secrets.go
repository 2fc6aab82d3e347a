package config

import "maps"

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: every credential
// that is set reads "***" and the slices and maps are copied so the original
// cannot be changed through the result.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, secret := range []*string{
		&out.Postgres.DSN,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.AuthToken,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}

	out.Algo.Symbols = append([]string(nil), cfg.Algo.Symbols...)
	out.Algo.Params = maps.Clone(cfg.Algo.Params)
	out.Calendar.Holidays = append([]string(nil), cfg.Calendar.Holidays...)
	out.Calendar.Sessions = append([]string(nil), cfg.Calendar.Sessions...)
	out.Backtest.StartPrices = maps.Clone(cfg.Backtest.StartPrices)
	out.Execution.MarginRates = maps.Clone(cfg.Execution.MarginRates)
	out.Controls.Blacklist = append([]string(nil), cfg.Controls.Blacklist...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}
