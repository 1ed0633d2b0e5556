package sqlite

// schemaStatements brings up the shared relational schema of §3.4. Statements
// run individually (sqlite3 does not accept multi-statement Exec
// reliably across all driver paths), each guarded by IF NOT EXISTS so
// CreateOrMigrate is idempotent per §3.5/§4.4.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS labels_name_dictionary (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS labels_description_dictionary (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS strings_values_dictionary (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sensors (
		sensor_id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		unit INTEGER REFERENCES units(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sensors_name ON sensors(name)`,
	`CREATE TABLE IF NOT EXISTS labels (
		sensor_id INTEGER NOT NULL REFERENCES sensors(sensor_id),
		name_id INTEGER NOT NULL REFERENCES labels_name_dictionary(id),
		description_id INTEGER NOT NULL REFERENCES labels_description_dictionary(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_labels_sensor ON labels(sensor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_labels_name ON labels(name_id)`,
	`CREATE TABLE IF NOT EXISTS integer_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_integer_values ON integer_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS numeric_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_numeric_values ON numeric_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS float_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_float_values ON float_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS string_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value INTEGER NOT NULL REFERENCES strings_values_dictionary(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_string_values ON string_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS boolean_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_boolean_values ON boolean_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS location_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_location_values ON location_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS json_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_json_values ON json_values(sensor_id, timestamp_us)`,
	`CREATE TABLE IF NOT EXISTS blob_values (
		sensor_id INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		value BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blob_values ON blob_values(sensor_id, timestamp_us)`,
}

// commonUnits are re-seeded by CleanupTestData after truncation, per
// §4.4's "preserve common units" requirement.
var commonUnits = []string{"°C", "%", "m", "kg"}
