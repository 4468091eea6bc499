package constants

import "time"

const (
	// Env variable names

	ENV_REGISTRY_URL    = "AIMETA_REGISTRY_URL"
	ENV_API_KEY         = "AIMETA_API_KEY"
	ENV_CIVITAI_API_KEY = "CIVITAI_API_KEY" // fallback of ENV_API_KEY
	ENV_TIMEOUT         = "AIMETA_TIMEOUT"  // per resolution, e.g. "15s"
	ENV_CONCURRENCY     = "AIMETA_CONCURRENCY"
	ENV_RETRIES         = "AIMETA_RETRIES"
	ENV_SCAN_LIMIT      = "AIMETA_SCAN_LIMIT" // bytes
	ENV_CONFIG          = "AIMETA_CONFIG"     // config file path

	DEFAULT_REGISTRY_URL = "https://civitai.com/api/v1/"
	DEFAULT_TIMEOUT      = 15 * time.Second
	DEFAULT_CONCURRENCY  = 4
	DEFAULT_RETRIES      = 2
	DEFAULT_SCAN_LIMIT   = 1 << 20

	DOTENV_FILE = ".env"

	TIME_FORMAT = "2006-01-02T15:04:05Z"
	DATE_FORMAT = "2006-01-02"

	FORMAT_JSON    = "json"
	FORMAT_TEXT    = "text"
	FORMAT_TABLE   = "table"
	FORMAT_SUMMARY = "summary"

	NULL = "null"
)

const HELP_TEMPLATE_FLAG = `The Go text template string. If the value starts with "@", ` +
	`it (the rest part after @) is treated as a filename, ` +
	`which contents will be used as template. The template data is the extraction result. ` +
	`All sprout functions are supported, see https://github.com/go-sprout/sprout`

const HELP_CONFIG_FLAG = `Config file (.yaml, .toml, .json or .jsonc). ` +
	`If not set, it reads ` + ENV_CONFIG + ` env`
