package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the Google API credentials.json downloaded from the
	// cloud console, stored in the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the access and refresh token obtained by SignIn.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the local server listens for the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// GoogleScopes cover identity plus the calendar the due-date mirror writes to.
var GoogleScopes = []string{
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// GoogleProvider signs users in through Google's OAuth2 web flow. The
// identity is the Google account id reported by the userinfo endpoint.
type GoogleProvider struct {
	dir    string
	config *oauth2.Config
	mu     sync.Mutex
	cached *Identity
	*broadcaster
}

// NewGoogleProvider reads the client secrets stored under dir.
func NewGoogleProvider(dir string) (*GoogleProvider, error) {
	config, err := GetConfig(dir, GoogleScopes)
	if err != nil {
		return nil, err
	}
	return &GoogleProvider{dir: dir, config: config, broadcaster: newBroadcaster()}, nil
}

// GetConfig creates an oauth2.Config from the client secrets file and forces
// the redirect onto the local callback listener.
func GetConfig(dir string, scopes []string) (*oauth2.Config, error) {
	clientSecretsFile := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsedURL, parseErr := url.Parse(config.RedirectURL)
	switch {
	case parseErr != nil:
		log.Printf("Warning: Could not parse RedirectURL '%s': %v. Using it as is.", config.RedirectURL, parseErr)
	case parsedURL.Hostname() == "localhost" || parsedURL.Hostname() == "127.0.0.1":
		if parsedURL.Port() != LocalhostAuthPort {
			parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsedURL.String()
		}
	case config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob":
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	default:
		log.Printf("Warning: Configured RedirectURL in credentials.json is not a localhost callback: %s", config.RedirectURL)
	}
	return config, nil
}

// Client returns an HTTP client that refreshes the stored token as needed.
func (p *GoogleProvider) Client(ctx context.Context) (*http.Client, error) {
	tokenFile := filepath.Join(p.dir, TokenFile)
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, err
	}
	src := p.config.TokenSource(ctx, tok)
	current, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("could not refresh token: %w", err)
	}
	if current.AccessToken != tok.AccessToken || current.RefreshToken != tok.RefreshToken {
		if err := saveToken(tokenFile, current); err != nil {
			log.Printf("Warning: could not save refreshed token: %v", err)
		}
	}
	return oauth2.NewClient(ctx, src), nil
}

func (p *GoogleProvider) Session(ctx context.Context) (*Identity, error) {
	p.mu.Lock()
	cached := p.cached
	p.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	client, err := p.Client(ctx)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	id, err := userInfo(ctx, client)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.cached = id
	p.mu.Unlock()
	return id, nil
}

func userInfo(ctx context.Context, client *http.Client) (*Identity, error) {
	srv, err := oauth2api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create userinfo service: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to fetch user info: %w", err)
	}
	return &Identity{ID: info.Id, Email: info.Email, FullName: info.Name, Avatar: info.Picture}, nil
}

// SignIn discards any stored token and runs the browser authorization flow.
// Google accounts have no password here; email and password are ignored.
func (p *GoogleProvider) SignIn(ctx context.Context, email, password string) error {
	tokenFile := filepath.Join(p.dir, TokenFile)
	if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file '%s': %w", tokenFile, err)
	}

	tok, err := getTokenFromWeb(ctx, p.config)
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	if err := saveToken(tokenFile, tok); err != nil {
		return err
	}

	id, err := userInfo(ctx, p.config.Client(ctx, tok))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cached = id
	p.mu.Unlock()
	p.emit(id)
	return nil
}

// SignUp is the same flow as SignIn; the account is created by Google.
func (p *GoogleProvider) SignUp(ctx context.Context, email, password string) error {
	return p.SignIn(ctx, email, password)
}

func (p *GoogleProvider) SignOut(ctx context.Context) error {
	tokenFile := filepath.Join(p.dir, TokenFile)
	if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file '%s': %w", tokenFile, err)
	}
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
	p.emit(nil)
	return nil
}

// getTokenFromWeb runs the authorization code flow, capturing the redirect
// on a local listener. The state parameter is fresh for every sign-in and a
// redirect carrying any other state is rejected.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort("", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	state := uuid.NewString()
	result := make(chan callbackResult, 1)
	server := &http.Server{
		Handler:      callbackHandler(state, result),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			deliver(result, callbackResult{err: fmt.Errorf("HTTP server error: %w", err)})
		}
	}()

	// AccessTypeOffline is required for a refresh token.
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to sign in to taskflow:\n%s\n", authURL)
	log.Println("Waiting for authorization code...")

	var res callbackResult
	select {
	case res = <-result:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
	if res.err != nil {
		return nil, res.err
	}
	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tok, err := config.Exchange(exchangeCtx, res.code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
	}
	return tok, nil
}

type callbackResult struct {
	code string
	err  error
}

// deliver keeps the first result; later redirects are answered but ignored.
func deliver(ch chan<- callbackResult, r callbackResult) {
	select {
	case ch <- r:
	default:
	}
}

func callbackHandler(state string, result chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Unexpected sign-in request", http.StatusBadRequest)
			return
		}
		if reason := q.Get("error"); reason != "" {
			http.Error(w, "Sign-in was not completed: "+reason, http.StatusForbidden)
			deliver(result, callbackResult{err: fmt.Errorf("google sign-in refused: %s: %w", reason, ErrInvalidCredentials)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			deliver(result, callbackResult{err: fmt.Errorf("authorization code not found in redirect URL")})
			return
		}
		fmt.Fprintln(w, "Signed in to taskflow. You can close this window.")
		deliver(result, callbackResult{code: code})
	})
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	log.Printf("Saving authentication token to: %s", path)
	return writeJSON(path, token)
}
