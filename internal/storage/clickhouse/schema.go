package clickhouse

// schemaStatements brings up the shared relational shape of §3.4 on
// ClickHouse. Dictionary and sensor tables use ReplacingMergeTree keyed
// on their deterministic hash id (see hash.go) so repeated inserts of
// the same row are idempotent once merged; value tables are plain
// MergeTree, append-only, ordered by (sensor_id, timestamp_us) per
// §3.4's "MergeTree-family tables keyed by (sensor_id, timestamp_us)"
// note.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS units (
		id Int64,
		name String,
		description Nullable(String)
	) ENGINE = ReplacingMergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS labels_name_dictionary (
		id Int64,
		name String
	) ENGINE = ReplacingMergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS labels_description_dictionary (
		id Int64,
		description String
	) ENGINE = ReplacingMergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS strings_values_dictionary (
		id Int64,
		value String
	) ENGINE = ReplacingMergeTree ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS sensors (
		sensor_id Int64,
		uuid String,
		name String,
		type String,
		unit_id Nullable(Int64)
	) ENGINE = ReplacingMergeTree ORDER BY sensor_id`,
	`CREATE TABLE IF NOT EXISTS labels (
		sensor_id Int64,
		name_id Int64,
		description_id Int64
	) ENGINE = ReplacingMergeTree ORDER BY (sensor_id, name_id, description_id)`,
	`CREATE TABLE IF NOT EXISTS integer_values (
		sensor_id Int64,
		timestamp_us Int64,
		value Int64
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS numeric_values (
		sensor_id Int64,
		timestamp_us Int64,
		value String
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS float_values (
		sensor_id Int64,
		timestamp_us Int64,
		value Float64
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS string_values (
		sensor_id Int64,
		timestamp_us Int64,
		value Int64
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS boolean_values (
		sensor_id Int64,
		timestamp_us Int64,
		value Bool
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS location_values (
		sensor_id Int64,
		timestamp_us Int64,
		latitude Float64,
		longitude Float64
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS json_values (
		sensor_id Int64,
		timestamp_us Int64,
		value String
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS blob_values (
		sensor_id Int64,
		timestamp_us Int64,
		value String
	) ENGINE = MergeTree ORDER BY (sensor_id, timestamp_us)`,
}

// commonUnits are re-seeded by CleanupTestData after truncation.
var commonUnits = []string{"°C", "%", "m", "kg"}
