// Command mkadmin provisions an administrator account
//
// Registration only creates students and tutors, admins are created out of band:
//
//	mkadmin --database "$DATABASE_URI" --username root
//
// A random password is generated and printed when none is given.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/medipals/internal/db"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository/postgres"
	"github.com/nkiryanov/medipals/internal/service/user"
)

const PasswordBytesLen = 16

func main() {
	if err := run(context.Background(), os.Stdout, os.Getenv, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while creating admin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, getenv func(string) string, args []string) error {
	var dsn, username, password string

	fs := pflag.NewFlagSet("mkadmin", pflag.ContinueOnError)
	fs.StringVarP(&dsn, "database", "d", getenv("DATABASE_URI"), "Database connection string")
	fs.StringVarP(&username, "username", "u", "", "Admin username")
	fs.StringVarP(&password, "password", "p", "", "Admin password, generated when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if dsn == "" {
		return errors.New("database DSN is required")
	}
	if username == "" {
		return errors.New("username is required")
	}

	generated := password == ""
	if generated {
		b := make([]byte, PasswordBytesLen)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("error while generating password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	pool, err := db.ConnectAndMigrate(ctx, dsn)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	admin, err := user.NewService(user.DefaultHasher, postgres.NewStorage(pool)).CreateUser(ctx, username, password, models.RoleAdmin)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "admin %s created, id %s\n", admin.Username, admin.ID)
	if generated {
		fmt.Fprintf(out, "password: %s\n", password)
	}
	return nil
}
