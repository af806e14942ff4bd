package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/admin"
	"github.com/dmitrijs2005/logicaldelete/internal/auth"
	"github.com/dmitrijs2005/logicaldelete/internal/config"
	"github.com/dmitrijs2005/logicaldelete/internal/logical"
	"github.com/dmitrijs2005/logicaldelete/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var c config.Config
	c.LoadDefaults()
	c.DatabaseDSN = "file:" + filepath.Join(t.TempDir(), "app.db") + "?_pragma=foreign_keys(1)"
	c.GRPCAddr = "127.0.0.1:0"
	c.MetricsAddr = "127.0.0.1:0"
	return &c
}

func quiet(t *testing.T) {
	t.Helper()
	orig := logOutput
	logOutput = io.Discard
	t.Cleanup(func() { logOutput = orig })
}

type nopArchive struct{}

func (nopArchive) Store(context.Context, *admin.Manifest) (string, error) { return "k", nil }

func TestNewApp_WiresStorage(t *testing.T) {
	quiet(t)
	ctx := context.Background()

	app, err := NewApp(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	users := logical.MustManager[vault.User](app.DB())
	u := &vault.User{Login: "ann"}
	require.NoError(t, users.Create(ctx, u))
	_, err = users.Delete(ctx, u)
	require.NoError(t, err)

	removed, err := app.Site().List(ctx, &auth.Claims{UserID: "ops", Staff: true}, "User", "1")
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	rec := httptest.NewRecorder()
	app.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `logicaldelete_records_affected_total{action="soft_delete",model="User"} 1`)
}

func TestNewApp_Archive(t *testing.T) {
	quiet(t)
	orig := newArchive
	t.Cleanup(func() { newArchive = orig })

	var got admin.S3Config
	newArchive = func(_ context.Context, c admin.S3Config) (admin.Archive, error) {
		got = c
		return nopArchive{}, nil
	}

	c := testConfig(t)
	c.S3Bucket = "erasures"
	c.S3BaseEndpoint = "http://minio:9000/"
	c.S3AccessKey = "ak"
	c.S3SecretKey = "sk"
	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, admin.S3Config{Bucket: "erasures", Region: "us-east-1", Endpoint: "http://minio:9000/", AccessKey: "ak", SecretKey: "sk"}, got)

	newArchive = func(context.Context, admin.S3Config) (admin.Archive, error) {
		return nil, errors.New("no credentials")
	}
	_, err = NewApp(context.Background(), c)
	require.ErrorContains(t, err, "archive init error")
}

func TestNewApp_BadDatabase(t *testing.T) {
	quiet(t)
	c := testConfig(t)
	c.DatabaseDSN = "file:" + filepath.Join(t.TempDir(), "missing", "dir", "app.db")

	_, err := NewApp(context.Background(), c)
	require.ErrorContains(t, err, "migration error")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	quiet(t)
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("app exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsServerError(t *testing.T) {
	quiet(t)
	c := testConfig(t)
	c.GRPCAddr = "127.0.0.1:99999"
	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after the gRPC listener failed")
	}
}

func TestIssueToken(t *testing.T) {
	var c config.Config
	c.LoadDefaults()

	var out bytes.Buffer
	require.NoError(t, IssueToken(&c, []string{"-user", "root", "-superuser", "-s", "ignored"}, &out))

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), []byte(c.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "root", claims.UserID)
	assert.True(t, claims.Superuser)
	assert.False(t, claims.Staff)

	err = IssueToken(&c, []string{"-staff"}, &out)
	require.ErrorContains(t, err, "-user is required")
}
