package imap

import (
	"fmt"

	"github.com/sqs/go-xoauth2"
)

// Authenticate performs XOAUTH2 authentication using an access token.
// Failures wrap ErrAuthentication.
func (d *Dialer) Authenticate(user string, accessToken string) (err error) {
	b64 := xoauth2.XOAuth2String(user, accessToken)
	// Don't retry authentication - auth failures should not trigger reconnection
	_, err = d.Exec(fmt.Sprintf("AUTHENTICATE XOAUTH2 %s", b64), false, 0, nil)
	if err != nil {
		return fmt.Errorf("%w: xoauth2 for %s: %w", ErrAuthentication, user, err)
	}
	d.Username, d.Password, d.useXOAUTH2 = user, accessToken, true
	return nil
}

// Login performs LOGIN authentication using username and password.
// Failures wrap ErrAuthentication.
func (d *Dialer) Login(username string, password string) (err error) {
	// Don't retry authentication - auth failures should not trigger reconnection
	d.Password = password
	_, err = d.Exec(fmt.Sprintf(`LOGIN %s %s`, quote(username), quote(password)), false, 0, nil)
	if err != nil {
		return fmt.Errorf("%w: login for %s: %w", ErrAuthentication, username, err)
	}
	d.Username, d.useXOAUTH2 = username, false
	return nil
}
