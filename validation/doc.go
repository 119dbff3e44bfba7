// Package validation checks configuration values.
//
// Struct tag validation uses go-playground/validator with mapstructure key
// names in messages:
//
//	type RunnerConfig struct {
//	    Workers int `mapstructure:"workers" validate:"gte=1"`
//	}
//	err := validation.Validate(cfg)
//
// Programmatic validation collects field errors under a path prefix:
//
//	v := validation.New()
//	v.Required("sources[0].name", src.Name)
//	v.Range("sources[0].schedule.open_hour", src.Schedule.OpenHour, 0, 23)
//	err := v.Err()
//
// Both return an *errors.AppError with code INVALID_CONFIG whose details
// list every failing field.
package validation
