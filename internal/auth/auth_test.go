package auth

import (
	"database/sql"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spotx/internal/store"
)

func newTestIssuer(t *testing.T) (*Issuer, *store.Store, *sql.DB) {
	t.Helper()
	if os.Getenv("DB_DSN") == "" {
		t.Skip("DB_DSN environment variable not set, skipping integration test")
	}

	db, err := store.Connect()
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM users WHERE email LIKE 'auth-itest-%'")
	require.NoError(t, err)

	st, err := store.New(db)
	require.NoError(t, err)

	return NewIssuer(st), st, db
}

func TestLogin_SucceedsWithCorrectPassword(t *testing.T) {
	issuer, st, db := newTestIssuer(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Alice", "auth-itest-alice@example.com", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, issuer.SetPassword(user.ID, "hunter2"))

	token, loggedIn, err := issuer.Login("auth-itest-alice@example.com", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, user.ID, loggedIn.ID)

	authed, err := issuer.Authenticate(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)
}

func TestLogin_FailsWithWrongPassword(t *testing.T) {
	issuer, st, db := newTestIssuer(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Bob", "auth-itest-bob@example.com", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, issuer.SetPassword(user.ID, "correct-password"))

	_, _, err = issuer.Login("auth-itest-bob@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_FailsWithUnknownEmail(t *testing.T) {
	issuer, _, db := newTestIssuer(t)
	defer db.Close()

	_, _, err := issuer.Login("auth-itest-nobody@example.com", "anything")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogout_RevokesToken(t *testing.T) {
	issuer, st, db := newTestIssuer(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Carol", "auth-itest-carol@example.com", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, issuer.SetPassword(user.ID, "password123"))

	token, _, err := issuer.Login("auth-itest-carol@example.com", "password123")
	require.NoError(t, err)

	issuer.Logout(token)

	_, err = issuer.Authenticate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_UnknownTokenFails(t *testing.T) {
	issuer, _, db := newTestIssuer(t)
	defer db.Close()

	_, err := issuer.Authenticate("not-a-real-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
