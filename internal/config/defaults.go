package config

const (
	defaultDataDir                 = "~/.local/share/caretaker"
	defaultLogDir                  = "~/.local/share/caretaker/logs"
	defaultAPIBind                 = "127.0.0.1:7790"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultAIModel                 = "claude-haiku-3-5"
	defaultAIMonthlyBudgetUSD      = 5.0
	defaultAIAdjustmentCap         = 2.0
	defaultAITimeoutSeconds        = 60
	defaultIntegrityRecheckDays    = 30
	defaultIntegrityWorkers        = 4
	defaultIntegrityTimeoutSeconds = 60
	defaultItemRetryAttempts       = 3
	defaultMaxRecommendations      = 20
	defaultSizeCeilingFactor       = 1.5
	defaultServiceWorkers          = 4
	defaultServiceRateLimit        = 10.0
	defaultErrorRetryInterval      = 5
	defaultRequestTimeout          = 15
	defaultSchedulerCron           = "0 3 * * *"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		AI: AI{
			Model:            defaultAIModel,
			MonthlyBudgetUSD: defaultAIMonthlyBudgetUSD,
			AdjustmentCap:    defaultAIAdjustmentCap,
			TimeoutSeconds:   defaultAITimeoutSeconds,
		},
		Scan: Scan{
			SizeThresholds: map[string]SizeBounds{
				"4k_hdr": {MinGBPerHour: 8, MaxGBPerHour: 25},
				"4k":     {MinGBPerHour: 6, MaxGBPerHour: 20},
				"1080":   {MinGBPerHour: 2, MaxGBPerHour: 10},
				"720":    {MinGBPerHour: 1, MaxGBPerHour: 5},
				"sd":     {MinGBPerHour: 0.5, MaxGBPerHour: 2},
			},
			PreferredAudioLanguages:    []string{"en"},
			RequiredSubtitleLanguages:  []string{"en"},
			LegacyCodecs:               []string{"mpeg2", "mpeg4", "xvid", "divx", "wmv", "vc1"},
			IntegrityRecheckDays:       defaultIntegrityRecheckDays,
			IntegrityWorkers:           defaultIntegrityWorkers,
			IntegrityTimeoutSeconds:    defaultIntegrityTimeoutSeconds,
			ItemRetryAttempts:          defaultItemRetryAttempts,
			MaxRecommendationsPerKind:  defaultMaxRecommendations,
			DuplicateSizeCeilingFactor: defaultSizeCeilingFactor,
		},
		Scheduler: Scheduler{
			Cron: defaultSchedulerCron,
		},
		Workflow: Workflow{
			ServiceWorkers:     defaultServiceWorkers,
			ServiceRateLimit:   defaultServiceRateLimit,
			ErrorRetryInterval: defaultErrorRetryInterval,
			RequestTimeout:     defaultRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
