package cmd

import (
	"time"

	"github.com/foomo/snippetserver/pkg/handler"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func logLevelFlag(v *viper.Viper) string {
	return v.GetString("log.level")
}

func addLogLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-level", "info", "log level")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

func logFormatFlag(v *viper.Viper) string {
	return v.GetString("log.format")
}

func addLogFormatFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-format", "json", "log format")
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindEnv("log.format", "LOG_FORMAT")
}

func addressFlag(v *viper.Viper) string {
	return v.GetString("address")
}

func addAddressFlag(flags *pflag.FlagSet, v *viper.Viper, def string) {
	flags.String("address", def, "Address to bind to (host:port)")
	_ = v.BindPFlag("address", flags.Lookup("address"))
	_ = v.BindEnv("address", "SNIPPETSERVER_ADDRESS")
}

func basePathFlag(v *viper.Viper) string {
	return v.GetString("base_path")
}

func addBasePathFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("base-path", "/snippetserver", "Base path to export the webserver on")
	_ = v.BindPFlag("base_path", flags.Lookup("base-path"))
	_ = v.BindEnv("base_path", "SNIPPETSERVER_BASE_PATH")
}

func storageTypeFlag(v *viper.Viper) string {
	return v.GetString("storage.type")
}

func addStorageTypeFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-type", storageTypeFilesystem, "Storage type: filesystem, blob or sqlite")
	_ = v.BindPFlag("storage.type", flags.Lookup("storage-type"))
	_ = v.BindEnv("storage.type", "SNIPPETSERVER_STORAGE_TYPE")
}

func storageBlobBucketFlag(v *viper.Viper) string {
	return v.GetString("storage.blob.bucket")
}

func addStorageBlobBucketFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-blob-bucket", "", "Blob bucket URL (gs://, s3://, azblob://, file://, mem://)")
	_ = v.BindPFlag("storage.blob.bucket", flags.Lookup("storage-blob-bucket"))
	_ = v.BindEnv("storage.blob.bucket", "SNIPPETSERVER_STORAGE_BLOB_BUCKET")
}

func storageBlobPrefixFlag(v *viper.Viper) string {
	return v.GetString("storage.blob.prefix")
}

func addStorageBlobPrefixFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-blob-prefix", "", "Key prefix inside the blob bucket")
	_ = v.BindPFlag("storage.blob.prefix", flags.Lookup("storage-blob-prefix"))
	_ = v.BindEnv("storage.blob.prefix", "SNIPPETSERVER_STORAGE_BLOB_PREFIX")
}

func storageSQLiteDSNFlag(v *viper.Viper) string {
	return v.GetString("storage.sqlite.dsn")
}

func addStorageSQLiteDSNFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-sqlite-dsn", "file:/var/lib/snippetserver/snippets.db", "SQLite data source name")
	_ = v.BindPFlag("storage.sqlite.dsn", flags.Lookup("storage-sqlite-dsn"))
	_ = v.BindEnv("storage.sqlite.dsn", "SNIPPETSERVER_STORAGE_SQLITE_DSN")
}

func historyDirFlag(v *viper.Viper) string {
	return v.GetString("history.dir")
}

func addHistoryDirFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("history-dir", "/var/lib/snippetserver", "Where to put my data")
	_ = v.BindPFlag("history.dir", flags.Lookup("history-dir"))
	_ = v.BindEnv("history.dir", "SNIPPETSERVER_HISTORY_DIR")
}

func historyLimitFlag(v *viper.Viper) int {
	return v.GetInt("history.limit")
}

func addHistoryLimitFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int("history-limit", 2, "Number of history records to keep")
	_ = v.BindPFlag("history.limit", flags.Lookup("history-limit"))
	_ = v.BindEnv("history.limit", "SNIPPETSERVER_HISTORY_LIMIT")
}

func storeKeyFlag(v *viper.Viper) string {
	return v.GetString("store.key")
}

func addStoreKeyFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("store-key", "snippets", "Backend key the collection is stored under")
	_ = v.BindPFlag("store.key", flags.Lookup("store-key"))
	_ = v.BindEnv("store.key", "SNIPPETSERVER_STORE_KEY")
}

func gracefulPeriodFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("graceful_period")
}

func addGracefulPeriodFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("graceful-period", 0, "Graceful period for shutdown")
	_ = v.BindPFlag("graceful_period", flags.Lookup("graceful-period"))
	_ = v.BindEnv("graceful_period", "SNIPPETSERVER_GRACEFUL_PERIOD")
}

func maxConnectionsFlag(v *viper.Viper) int {
	return v.GetInt("max_connections")
}

func addMaxConnectionsFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int("max-connections", 0, "Maximum number of simultaneous socket connections (0 means unlimited)")
	_ = v.BindPFlag("max_connections", flags.Lookup("max-connections"))
	_ = v.BindEnv("max_connections", "SNIPPETSERVER_MAX_CONNECTIONS")
}

func maxRequestLengthFlag(v *viper.Viper) int64 {
	return v.GetInt64("max_request_length")
}

func addMaxRequestLengthFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int64("max-request-length", handler.DefaultMaxRequestLength, "Maximum length of a request body in bytes")
	_ = v.BindPFlag("max_request_length", flags.Lookup("max-request-length"))
	_ = v.BindEnv("max_request_length", "SNIPPETSERVER_MAX_REQUEST_LENGTH")
}

func gzipLevelFlag(v *viper.Viper) int {
	return v.GetInt("gzip.level")
}

func addGzipLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int("gzip-level", -1, "Gzip compression level of http responses")
	_ = v.BindPFlag("gzip.level", flags.Lookup("gzip-level"))
	_ = v.BindEnv("gzip.level", "SNIPPETSERVER_GZIP_LEVEL")
}

func formatFlag(v *viper.Viper) string {
	return v.GetString("format")
}

func addFormatFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("format", "", "Exchange format: json or yaml (defaults to the file extension)")
	_ = v.BindPFlag("format", flags.Lookup("format"))
}

func serviceHealthzEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.healthz.enabled")
}

func addServiceHealthzEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-healthz-enabled", false, "Enable healthz service")
	_ = v.BindPFlag("service.healthz.enabled", flags.Lookup("service-healthz-enabled"))
}

func servicePrometheusEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.prometheus.enabled")
}

func addServicePrometheusEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-prometheus-enabled", false, "Enable prometheus service")
	_ = v.BindPFlag("service.prometheus.enabled", flags.Lookup("service-prometheus-enabled"))
}

func servicePProfEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.pprof.enabled")
}

func addServicePProfEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-pprof-enabled", false, "Enable pprof service")
	_ = v.BindPFlag("service.pprof.enabled", flags.Lookup("service-pprof-enabled"))
}

func otelEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("otel.enabled")
}

func addOtelEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("otel-enabled", false, "Enable otel service")
	_ = v.BindPFlag("otel.enabled", flags.Lookup("otel-enabled"))
	_ = v.BindEnv("otel.enabled", "OTEL_ENABLED")
}

// addRepoFlags registers everything newRepo reads
func addRepoFlags(flags *pflag.FlagSet, v *viper.Viper) {
	addStorageTypeFlag(flags, v)
	addStorageBlobBucketFlag(flags, v)
	addStorageBlobPrefixFlag(flags, v)
	addStorageSQLiteDSNFlag(flags, v)
	addHistoryDirFlag(flags, v)
	addHistoryLimitFlag(flags, v)
	addStoreKeyFlag(flags, v)
}
