package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"trades-signal/internal/config"
)

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "signal.db")

	s, err := NewSQLite(config.DatabaseConfig{Path: path, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec(`CREATE TABLE probe (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
}

func TestNewMemory_SharesSingleConnection(t *testing.T) {
	s, err := NewMemory()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec(`CREATE TABLE probe (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO probe (id) VALUES (1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM probe`).Scan(&n))
	require.Equal(t, 1, n)
}
