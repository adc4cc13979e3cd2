package utils

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// 文档注释：拼接 PostgreSQL DSN
// 约束：PG_HOST/PG_PORT/PG_USER/PG_PASSWORD/PG_DB/PG_SSLMODE，未设置时使用本地默认值。
func BuildPostgresDSNFromEnv() string {
	user := EnvString("PG_USER", "postgres")
	dsn := "postgres://" + user
	if pass := EnvString("PG_PASSWORD", ""); pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + EnvString("PG_HOST", "localhost") + ":" + EnvString("PG_PORT", "5432") +
		"/" + EnvString("PG_DB", "ipcat") + "?sslmode=" + EnvString("PG_SSLMODE", "disable")
	return dsn
}

func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(EnvInt("PG_MAX_OPEN_CONNS", 10))
	db.SetMaxIdleConns(EnvInt("PG_MAX_IDLE_CONNS", 5))
	return db, nil
}

// OpenPostgresFromEnv：PG_ENABLE 非 true 时返回 (nil, nil)，快照持久化与统计随之关闭
func OpenPostgresFromEnv() (*sql.DB, error) {
	if !EnvBool("PG_ENABLE", false) {
		return nil, nil
	}
	return OpenPostgres(BuildPostgresDSNFromEnv())
}
