package clickhouse

import (
	murmur "github.com/aviddiviner/go-murmur"
	"github.com/go-faster/city"
)

// sensorIDOf derives a stable surrogate sensor_id from a series' UUID
// text, since ClickHouse has no autoincrement/UUID primary key the way
// SQLite and PostgreSQL do (§9's "sensor_id derived by hashing the UUID
// to u64" deviation note; ClickHouse lacks native UUID PKs). Reuses the
// teacher's own city.Hash64(name) idiom from clickhouse.go's
// hashModeNameHID path, applied to the UUID string instead of a sensor
// name.
func sensorIDOf(uuidString string) int64 {
	return int64(city.Hash64([]byte(uuidString)))
}

// dictionaryIDOf derives a dictionary row id from its interned string,
// combining two 32-bit MurmurHash2 passes (distinct seeds) into 64 bits
// — the teacher's hashModeUnisetHID path uses the same
// murmur.MurmurHash2 call for UniSet-compatible hashing, widened here
// since dictionary ids need the full 64-bit id space sensors use.
func dictionaryIDOf(value string) int64 {
	hi := murmur.MurmurHash2([]byte(value), 0)
	lo := murmur.MurmurHash2([]byte(value), 1)
	return int64(uint64(hi)<<32 | uint64(lo))
}
