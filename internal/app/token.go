package app

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/logicaldelete/internal/auth"
	"github.com/dmitrijs2005/logicaldelete/internal/config"
)

// IssueToken prints an operator token signed with the configured secret.
// Flags other than the ones below are ignored.
//
//	-user string   operator id (required)
//	-staff         may list, delete and restore
//	-superuser     may also erase completely
func IssueToken(c *config.Config, args []string, w io.Writer) error {
	var claims auth.Claims

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&claims.UserID, "user", "", "operator id")
	fs.BoolVar(&claims.Staff, "staff", false, "staff operator")
	fs.BoolVar(&claims.Superuser, "superuser", false, "superuser operator")
	if err := fs.Parse(config.FilterArgs(args, []string{"-user", "-staff", "-superuser"})); err != nil {
		return fmt.Errorf("parse token flags: %w", err)
	}
	if claims.UserID == "" {
		return fmt.Errorf("token: -user is required")
	}

	tok, err := auth.GenerateToken(claims, []byte(c.SecretKey), c.TokenValidity)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	_, err = fmt.Fprintln(w, tok)
	return err
}
