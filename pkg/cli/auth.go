package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/auth"
	"github.com/harrisonrobin/taskflow/pkg/notify"
	"github.com/harrisonrobin/taskflow/pkg/session"
	"github.com/spf13/cobra"
)

const signInTimeout = 5 * time.Minute

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in with email and password, or with Google",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func init() {
	signupCmd.Flags().String("password", "", "Password (prompted for when omitted)")
	loginCmd.Flags().String("password", "", "Password (prompted for when omitted)")
	loginCmd.Flags().Bool("google", false, "Sign in with a Google account in the browser")
}

func readPassword(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password != "" {
		return password, nil
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// authSession runs a session over provider for the duration of fn, so a
// sign-in reaches the profile store the way it would in a long-running
// client.
func authSession(ctx context.Context, provider auth.Provider, fn func(sess *session.Session) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	var profiles session.ProfileStore
	gw, closeGW, err := openGateway(cfg)
	if err != nil {
		log.Printf("Warning: profile will not be stored: %v", err)
	} else {
		defer closeGW()
		profiles = gw
	}

	sess := session.New(provider, profiles, notify.NewWriter(os.Stderr))
	if err := sess.Start(ctx); err != nil {
		log.Printf("Warning: could not read session: %v", err)
	}
	defer sess.Close()
	return fn(sess)
}

// awaitSignIn blocks until sess has picked up the identity the provider
// just signed in.
func awaitSignIn(ctx context.Context, provider auth.Provider, sess *session.Session) {
	next, err := provider.Session(ctx)
	if err != nil || next == nil {
		return
	}
	ids, stop := sess.Watch()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ids:
			if !ok || (id != nil && id.ID == next.ID) {
				return
			}
		}
	}
}

func runSignup(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, dir, false)
	if err != nil {
		return err
	}
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), signInTimeout)
	defer cancel()

	email := args[0]
	return authSession(ctx, provider, func(sess *session.Session) error {
		if err := provider.SignUp(ctx, email, password); err != nil {
			return fmt.Errorf("sign up failed: %w", err)
		}
		if err := provider.SignIn(ctx, email, password); err != nil {
			return fmt.Errorf("sign in failed: %w", err)
		}
		awaitSignIn(ctx, provider, sess)
		fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s\n", email)
		return nil
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	google, _ := cmd.Flags().GetBool("google")
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, dir, google)
	if err != nil {
		return err
	}

	var email, password string
	if _, isLocal := provider.(*auth.LocalProvider); isLocal {
		if len(args) == 0 {
			return fmt.Errorf("email is required; use --google to sign in with Google")
		}
		email = args[0]
		if password, err = readPassword(cmd); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), signInTimeout)
	defer cancel()
	return authSession(ctx, provider, func(sess *session.Session) error {
		if err := provider.SignIn(ctx, email, password); err != nil {
			return fmt.Errorf("sign in failed: %w", err)
		}
		awaitSignIn(ctx, provider, sess)
		if id := sess.Current(); id != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.Email)
		}
		return nil
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, dir, false)
	if err != nil {
		return err
	}
	if err := provider.SignOut(cmd.Context()); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, dir, false)
	if err != nil {
		return err
	}
	id, err := provider.Session(cmd.Context())
	if err != nil {
		return err
	}
	if id == nil {
		return errNotSignedIn
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.Email, id.ID)
	if id.FullName != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Name: %s\n", id.FullName)
	}
	return nil
}
