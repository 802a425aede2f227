package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/logrusadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/mikeydub/go-indexer/env"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/util/retry"
	"github.com/sirupsen/logrus"

	// register postgres driver
	_ "github.com/jackc/pgx/v4/stdlib"
)

var DefaultConnectRetry = retry.Retry{MinWait: 2, MaxWait: 4, MaxRetries: 3}

type ErrRoleDoesNotExist struct {
	role string
}

func (e ErrRoleDoesNotExist) Error() string {
	return fmt.Sprintf("role '%s' does not exist", e.role)
}

type connectionParams struct {
	user     string
	password string
	dbname   string
	host     string
	port     int
	appname  string
	retry    *retry.Retry
}

func (c *connectionParams) toConnectionString() string {
	port := c.port
	if port == 0 {
		port = 5432
	}

	connStr := fmt.Sprintf("user=%s dbname=%s host=%s port=%d", c.user, c.dbname, c.host, port)

	// Empty passwords should be omitted so they don't interfere with other parameters
	// (e.g. "password= dbname=something" causes Postgres to ignore the dbname)
	if c.password != "" {
		connStr += fmt.Sprintf(" password=%s", c.password)
	}

	return connStr
}

func newConnectionParamsFromEnv() connectionParams {
	return connectionParams{
		user:     env.GetString("POSTGRES_USER"),
		password: env.GetString("POSTGRES_PASSWORD"),
		dbname:   env.GetString("POSTGRES_DB"),
		host:     env.GetString("POSTGRES_HOST"),
		port:     env.GetInt("POSTGRES_PORT"),

		// Retry connections by default
		retry: &DefaultConnectRetry,
	}
}

type ConnectionOption func(params *connectionParams)

func WithUser(user string) ConnectionOption {
	return func(params *connectionParams) {
		params.user = user
	}
}

func WithPassword(password string) ConnectionOption {
	return func(params *connectionParams) {
		params.password = password
	}
}

func WithDBName(dbname string) ConnectionOption {
	return func(params *connectionParams) {
		params.dbname = dbname
	}
}

func WithHost(host string) ConnectionOption {
	return func(params *connectionParams) {
		params.host = host
	}
}

func WithPort(port int) ConnectionOption {
	return func(params *connectionParams) {
		params.port = port
	}
}

func WithAppName(appName string) ConnectionOption {
	return func(params *connectionParams) {
		params.appname = appName
	}
}

func WithRetries(r retry.Retry) ConnectionOption {
	return func(params *connectionParams) {
		params.retry = &r
	}
}

func WithNoRetries() ConnectionOption {
	return func(params *connectionParams) {
		params.retry = nil
	}
}

// MustCreateClient panics when it fails to create a new database connection. By default, it will try to
// connect 3 times before returning an error.
func MustCreateClient(opts ...ConnectionOption) *sql.DB {
	db, err := NewClient(opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// NewClient creates a new Postgres client. By default, it will try to connect 3 times before returning an error.
func NewClient(opts ...ConnectionOption) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	params := newConnectionParamsFromEnv()
	for _, opt := range opts {
		opt(&params)
	}

	var db *sql.DB

	connectF := func(ctx context.Context) error {
		var err error
		db, err = sql.Open("pgx", params.toConnectionString())
		return err
	}

	if params.retry != nil {
		err := retry.RetryFunc(ctx, connectF, func(err error) bool { return true }, *params.retry)
		if err != nil {
			return nil, err
		}
	} else {
		err := connectF(ctx)
		if err != nil {
			return nil, err
		}
	}

	db.SetMaxOpenConns(50)

	err := db.PingContext(ctx)
	if err != nil && strings.Contains(err.Error(), fmt.Sprintf("role \"%s\" does not exist", params.user)) {
		return nil, ErrRoleDoesNotExist{params.user}
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

// NewPgxClient creates a new Postgres client via pgx. By default, it will try to connect 3 times before returning an error.
func NewPgxClient(opts ...ConnectionOption) *pgxpool.Pool {
	ctx := context.Background()

	params := newConnectionParamsFromEnv()
	for _, opt := range opts {
		opt(&params)
	}

	config, err := pgxpool.ParseConfig(params.toConnectionString())
	if err != nil {
		logger.For(nil).WithError(err).Fatal("could not parse pgx connection string")
		panic(err)
	}

	if params.appname != "" {
		config.ConnConfig.RuntimeParams["application_name"] = params.appname
	}

	config.ConnConfig.Logger = logrusadapter.NewLogger(logrus.StandardLogger())
	config.ConnConfig.LogLevel = pgx.LogLevelWarn

	var db *pgxpool.Pool

	connectF := func(ctx context.Context) error {
		var err error
		db, err = pgxpool.ConnectConfig(ctx, config)
		return err
	}

	if params.retry != nil {
		err = retry.RetryFunc(ctx, connectF, func(err error) bool { return true }, *params.retry)
	} else {
		err = connectF(ctx)
	}

	if err != nil {
		logger.For(nil).WithError(err).Fatal("could not open database connection")
		panic(err)
	}

	db.Config().MaxConns = 50

	err = db.Ping(ctx)
	if err != nil {
		panic(err)
	}
	return db
}

// generateValuesPlaceholders returns a parenthesized placeholder group of the
// given length starting at offset, e.g. ($4,$5,$6)
func generateValuesPlaceholders(l, offset int) string {
	values := "("
	for i := 0; i < l; i++ {
		values += fmt.Sprintf("$%d,", i+1+offset)
	}
	return values[0:len(values)-1] + ")"
}

func checkNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Repositories is the set of all available persistence repositories
type Repositories struct {
	db   *sql.DB
	pool *pgxpool.Pool

	NetworkRepository  *NetworkRepository
	TokenRepository    *TokenRepository
	IndexerRepository  *IndexerRepository
	TransferRepository *TransferRepository
	BalanceRepository  *BalanceRepository
}

// NewRepositories wires every repository over a shared pair of connections:
// database/sql for prepared statements, pgx for aggregate queries
func NewRepositories(pq *sql.DB, pgx *pgxpool.Pool) *Repositories {
	return &Repositories{
		db:   pq,
		pool: pgx,

		NetworkRepository:  NewNetworkRepository(pq),
		TokenRepository:    NewTokenRepository(pq),
		IndexerRepository:  NewIndexerRepository(pq),
		TransferRepository: NewTransferRepository(pq, pgx),
		BalanceRepository:  NewBalanceRepository(pq, pgx),
	}
}
