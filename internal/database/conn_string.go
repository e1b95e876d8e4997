package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/auction-sync/internal/config"
)

const (
	defaultPort            = 5432
	defaultSSLMode         = "prefer"
	defaultApplicationName = "auctionwatch"
)

// BuildConnString renders cfg as a postgres:// URL that pgxpool.ParseConfig
// understands. Pool sizes travel as pool_max_conns and pool_min_conns and are
// left out when zero so pgxpool keeps its own defaults.
func BuildConnString(cfg config.DBConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	q := url.Values{}
	q.Set("sslmode", orDefault(cfg.SSLMode, defaultSSLMode))
	q.Set("application_name", orDefault(cfg.ApplicationName, defaultApplicationName))
	if cfg.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		q.Set("pool_min_conns", strconv.Itoa(cfg.MinConns))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
