package factpod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/openprofile/factpod-gateway/instrumentation"
	"github.com/openprofile/factpod-gateway/internal/util"
	"github.com/openprofile/factpod-gateway/providers/openid"
	"github.com/openprofile/factpod-gateway/security"
	"github.com/openprofile/factpod-gateway/storage"
)

// statePrefixLogLength is the number of characters of a state value to
// include in logs and audit events
const statePrefixLogLength = 8

// Service is the orchestration engine for fact pod enablement.
// It is stateless between calls; all durable state lives in the repository,
// so a Service can be shared freely across goroutines.
type Service struct {
	repo     storage.Repository
	provider *openid.Client
	cfg      Config
	logger   *slog.Logger

	auditor    *security.Auditor
	encryptor  *security.Encryptor
	regLimiter *security.RateLimiter

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer
}

var _ API = (*Service)(nil)

// New creates a new orchestration service. The configuration is validated
// and defaulted; repo and provider are required.
func New(repo storage.Repository, provider *openid.Client, cfg Config) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var encryptor *security.Encryptor
	if cfg.Security.EncryptionPassphrase != "" {
		enc, err := security.NewEncryptorFromPassphrase(cfg.Security.EncryptionPassphrase, cfg.Security.EncryptionSalt)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
		}
		encryptor = enc
	}

	return &Service{
		repo:      repo,
		provider:  provider,
		cfg:       cfg,
		logger:    cfg.Logger,
		auditor:   security.NewAuditor(cfg.Logger, cfg.Security.AuditEnabled),
		encryptor: encryptor,
		regLimiter: security.NewRateLimiter(
			cfg.RateLimit.RegistrationsPerInterval,
			cfg.RateLimit.Interval,
			cfg.RateLimit.Burst,
			cfg.Logger,
		),
	}, nil
}

// Close releases service-held resources (the registration rate limiter's
// cleanup goroutine). The repository and provider client are owned by the
// caller and are not closed here.
func (s *Service) Close() {
	s.regLimiter.Stop()
}

// SetInstrumentation sets OpenTelemetry instrumentation for the service
func (s *Service) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst != nil {
		s.tracer = inst.Tracer("service")
	}
}

// EnableFactPod starts the enablement flow for a (user, site) pairing.
//
// An existing client registration is reused; otherwise the provider's
// registration endpoint is called and the resulting client persisted. A
// fresh authorization state is issued (regenerating on collision, bounded by
// StateAttempts) and the authorization URL returned for the front end to
// redirect the user to.
func (s *Service) EnableFactPod(ctx context.Context, userID, site string) (*EnableResult, error) {
	ctx, span := s.startSpan(ctx, "factpod.enable")
	defer span.End()

	if userID == "" || site == "" {
		return nil, s.fail(span, site, "validation", fmt.Errorf("userID and site are required"))
	}
	site = util.NormalizeURL(site)
	instrumentation.AddFlowAttributes(span, userID, site)

	start := time.Now()
	providerCfg, err := s.provider.Discover(ctx, issuerURL(site))
	s.recordProviderCall(ctx, site, "discovery", start, err)
	if err != nil {
		return nil, s.fail(span, site, "discovery", err)
	}

	registered := false
	clientCfg, err := s.repo.GetClientConfig(ctx, userID, site)
	switch {
	case err == nil:
		// Reuse the existing registration; providers are not re-registered
		// on every connect.
	case errors.Is(err, storage.ErrClientConfigNotFound):
		clientCfg, err = s.registerClient(ctx, userID, site, providerCfg)
		if err != nil {
			instrumentation.RecordError(span, err)
			return nil, err
		}
		registered = true
	default:
		return nil, s.fail(span, site, "load client config", err)
	}

	// Make sure the site has an enablement record before the user leaves for
	// the provider; it stays disabled until the callback succeeds.
	if _, err := s.repo.GetFactPodConfig(ctx, site); err != nil {
		if !errors.Is(err, storage.ErrFactPodConfigNotFound) {
			return nil, s.fail(span, site, "load fact pod config", err)
		}
		if err := s.repo.PutFactPodConfig(ctx, &storage.FactPodConfig{Site: site, Enabled: false}); err != nil {
			return nil, s.fail(span, site, "init fact pod config", err)
		}
	}

	st, err := s.issueState(ctx, userID, site)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	scope := strings.Join(s.cfg.Scopes, " ")
	authURL := buildAuthorizationURL(providerCfg.AuthorizationEndpoint, clientCfg.ClientID, clientCfg.RedirectURL, scope, st.State)

	s.auditor.LogEnableStarted(userID, site, registered)
	if s.inst != nil {
		s.inst.Metrics().RecordEnableStarted(ctx, site, registered)
	}
	s.logger.Info("Fact pod enablement started",
		"site", site,
		"registered", registered,
		"state_prefix", util.SafeTruncate(st.State, statePrefixLogLength))
	instrumentation.SetSpanSuccess(span)

	return &EnableResult{
		Status:           StatusRedirectUser,
		AuthorizationURL: authURL,
		SupportedScopes:  append([]string(nil), s.cfg.Scopes...),
	}, nil
}

// registerClient performs rate-limited dynamic client registration for a
// site and persists the resulting client config.
func (s *Service) registerClient(ctx context.Context, userID, site string, providerCfg *openid.Configuration) (*storage.ClientConfig, error) {
	if providerCfg.RegistrationEndpoint == "" {
		return nil, newServiceError(site, "registration", fmt.Errorf("provider does not support dynamic client registration"))
	}

	if !s.regLimiter.Allow(site) {
		s.auditor.LogRegistrationThrottled(site)
		if s.inst != nil {
			s.inst.Metrics().RecordRateLimitExceeded(ctx, "registration")
		}
		return nil, newServiceError(site, "registration", fmt.Errorf("registration rate limit exceeded"))
	}

	redirectURL := fmt.Sprintf(s.cfg.RedirectURLTemplate, site)

	start := time.Now()
	reg, err := s.provider.RegisterClient(ctx, providerCfg.RegistrationEndpoint, &openid.RegistrationRequest{
		ClientName:              fmt.Sprintf("Gateway for %s", site),
		RedirectURIs:            []string{redirectURL},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "client_secret_post",
		Scope:                   strings.Join(s.cfg.Scopes, " "),
	})
	s.recordProviderCall(ctx, site, "registration", start, err)
	if err != nil {
		return nil, newServiceError(site, "registration", err)
	}

	secret := reg.ClientSecret
	if s.encryptor.IsEnabled() {
		secret, err = s.encryptor.Encrypt(secret)
		if err != nil {
			return nil, newServiceError(site, "encrypt client secret", err)
		}
	}

	clientCfg := &storage.ClientConfig{
		UserID:       userID,
		Site:         site,
		ClientID:     reg.ClientID,
		ClientSecret: secret,
		RedirectURL:  redirectURL,
	}
	if err := s.repo.PutClientConfig(ctx, clientCfg); err != nil {
		return nil, newServiceError(site, "save client config", err)
	}

	if s.inst != nil {
		s.inst.Metrics().RecordClientRegistration(ctx, site)
	}
	s.logger.Info("Registered OAuth client for fact pod",
		"site", site,
		"client_id", reg.ClientID)

	return clientCfg, nil
}

// issueState persists a fresh authorization state, regenerating on value
// collision. Collisions are vanishingly rare with 256-bit states, so hitting
// the attempt bound indicates something systematically wrong.
func (s *Service) issueState(ctx context.Context, userID, site string) (*storage.AuthState, error) {
	for attempt := 1; attempt <= s.cfg.StateAttempts; attempt++ {
		now := time.Now()
		st := &storage.AuthState{
			State:     oauth2.GenerateVerifier(),
			UserID:    userID,
			Site:      site,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.StateTTL),
		}

		err := s.repo.PutAuthState(ctx, st)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, storage.ErrStateConflict) {
			return nil, newServiceError(site, "persist state", err)
		}

		if s.inst != nil {
			s.inst.Metrics().RecordStateConflict(ctx)
		}
		s.logger.Warn("Authorization state collision, regenerating",
			"site", site,
			"attempt", attempt)
	}

	return nil, newServiceError(site, "persist state",
		fmt.Errorf("no unused state value in %d attempts: %w", s.cfg.StateAttempts, storage.ErrStateConflict))
}

// HandleCallback processes the provider redirect carrying state and code.
//
// The state is consumed atomically; a state that is absent, expired, or
// already consumed fails with ErrInvalidState, with no distinction between
// those cases. On a successful code exchange the site's enablement record is
// flipped to enabled. Token material is not persisted.
func (s *Service) HandleCallback(ctx context.Context, state, code string) (*CallbackResult, error) {
	ctx, span := s.startSpan(ctx, "factpod.callback")
	defer span.End()

	if state == "" {
		s.auditor.LogInvalidState("")
		instrumentation.RecordError(span, ErrInvalidState)
		return nil, ErrInvalidState
	}
	if code == "" {
		return nil, s.fail(span, "", "validation", fmt.Errorf("authorization code is required"))
	}

	st, err := s.repo.GetAndDeleteAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			s.auditor.LogInvalidState(util.SafeTruncate(state, statePrefixLogLength))
			if s.inst != nil {
				s.inst.Metrics().RecordCallbackProcessed(ctx, "", false)
			}
			instrumentation.RecordError(span, ErrInvalidState)
			return nil, ErrInvalidState
		}
		return nil, s.fail(span, "", "consume state", err)
	}

	site := st.Site
	instrumentation.AddFlowAttributes(span, st.UserID, site)

	clientCfg, err := s.repo.GetClientConfig(ctx, st.UserID, site)
	if err != nil {
		// The state was issued by this service, so the client config should
		// exist; its absence is an inconsistent store, not a user error.
		s.auditor.LogCallbackProcessed(st.UserID, site, false, "missing client config")
		return nil, s.failCallback(ctx, span, site, "load client config", err)
	}

	secret := clientCfg.ClientSecret
	if s.encryptor.IsEnabled() {
		secret, err = s.encryptor.Decrypt(secret)
		if err != nil {
			return nil, s.failCallback(ctx, span, site, "decrypt client secret", err)
		}
	}

	start := time.Now()
	providerCfg, err := s.provider.Discover(ctx, issuerURL(site))
	s.recordProviderCall(ctx, site, "discovery", start, err)
	if err != nil {
		s.auditor.LogCallbackProcessed(st.UserID, site, false, "discovery failed")
		return nil, s.failCallback(ctx, span, site, "discovery", err)
	}

	start = time.Now()
	_, err = s.provider.ExchangeCode(ctx, providerCfg.TokenEndpoint, clientCfg.ClientID, secret, clientCfg.RedirectURL, code)
	s.recordProviderCall(ctx, site, "token_exchange", start, err)
	if err != nil {
		s.auditor.LogCallbackProcessed(st.UserID, site, false, "token exchange failed")
		return nil, s.failCallback(ctx, span, site, "token exchange", err)
	}

	if s.inst != nil {
		s.inst.Metrics().RecordCodeExchange(ctx, site)
	}

	cfg, err := s.repo.GetFactPodConfig(ctx, site)
	if err != nil {
		if !errors.Is(err, storage.ErrFactPodConfigNotFound) {
			return nil, s.failCallback(ctx, span, site, "load fact pod config", err)
		}
		cfg = &storage.FactPodConfig{Site: site}
	}
	cfg.Enabled = true
	if err := s.repo.PutFactPodConfig(ctx, cfg); err != nil {
		return nil, s.failCallback(ctx, span, site, "save fact pod config", err)
	}

	s.auditor.LogCallbackProcessed(st.UserID, site, true, "")
	if s.inst != nil {
		s.inst.Metrics().RecordCallbackProcessed(ctx, site, true)
	}
	s.logger.Info("Fact pod connected", "site", site)
	instrumentation.SetSpanSuccess(span)

	return &CallbackResult{
		Status: StatusConnected,
		UserID: st.UserID,
		Site:   site,
	}, nil
}

// DisableFactPod disables a site. The client registration is retained so a
// later re-enable does not repeat registration.
func (s *Service) DisableFactPod(ctx context.Context, site string) error {
	ctx, span := s.startSpan(ctx, "factpod.disable")
	defer span.End()

	if site == "" {
		return s.fail(span, site, "validation", fmt.Errorf("site is required"))
	}
	site = util.NormalizeURL(site)

	cfg, err := s.repo.GetFactPodConfig(ctx, site)
	if err != nil {
		return s.fail(span, site, "disable", err)
	}

	cfg.Enabled = false
	if err := s.repo.PutFactPodConfig(ctx, cfg); err != nil {
		return s.fail(span, site, "save fact pod config", err)
	}

	s.auditor.LogFactPodDisabled(site)
	if s.inst != nil {
		s.inst.Metrics().RecordFactPodDisabled(ctx, site)
	}
	s.logger.Info("Fact pod disabled", "site", site)
	instrumentation.SetSpanSuccess(span)

	return nil
}

// ListCategories returns one page of the category listing.
func (s *Service) ListCategories(ctx context.Context, pageToken string) (*storage.CategoryPage, error) {
	page, err := s.repo.ListCategories(ctx, pageToken)
	if err != nil {
		return nil, newServiceError("", "list categories", err)
	}
	return page, nil
}

// GetFactPodConfig returns the enablement record for a site.
func (s *Service) GetFactPodConfig(ctx context.Context, site string) (*storage.FactPodConfig, error) {
	cfg, err := s.repo.GetFactPodConfig(ctx, util.NormalizeURL(site))
	if err != nil {
		return nil, newServiceError(site, "load fact pod config", err)
	}
	return cfg, nil
}

// issuerURL derives the provider issuer from a site. A site carrying an
// explicit scheme is taken as-is (local development against plain-HTTP
// providers); a bare hostname gets HTTPS.
func issuerURL(site string) string {
	if strings.HasPrefix(site, "http://") || strings.HasPrefix(site, "https://") {
		return site
	}
	return "https://" + site
}

// buildAuthorizationURL assembles the provider authorization URL with all
// parameters percent-encoded.
func buildAuthorizationURL(endpoint, clientID, redirectURL, scope, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURL)
	q.Set("scope", scope)
	q.Set("state", state)

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}

// recordProviderCall records timing and outcome for a provider API call. The
// status code is recovered from the provider's typed errors; successful calls
// report 200 even when served from the discovery cache.
func (s *Service) recordProviderCall(ctx context.Context, site, operation string, start time.Time, err error) {
	if s.inst == nil {
		return
	}

	status := 200
	if err != nil {
		status = 0
		var discoveryErr *openid.DiscoveryError
		var registrationErr *openid.RegistrationError
		var exchangeErr *openid.TokenExchangeError
		switch {
		case errors.As(err, &discoveryErr):
			status = discoveryErr.StatusCode
		case errors.As(err, &registrationErr):
			status = registrationErr.StatusCode
		case errors.As(err, &exchangeErr):
			status = exchangeErr.StatusCode
		}
	}

	s.inst.Metrics().RecordProviderAPICall(ctx, site, operation, status,
		float64(time.Since(start).Milliseconds()), err)
}

// startSpan starts a service-level span, or returns the caller's span when
// instrumentation is not set.
func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// fail wraps an error as a ServiceError, records it on the span, and logs it.
func (s *Service) fail(span trace.Span, site, step string, err error) *ServiceError {
	serr := newServiceError(site, step, err)
	instrumentation.RecordError(span, serr)
	s.logger.Error("Fact pod operation failed",
		"site", site,
		"step", step,
		"error", err)
	return serr
}

// failCallback is fail plus the failed-callback metric.
func (s *Service) failCallback(ctx context.Context, span trace.Span, site, step string, err error) *ServiceError {
	if s.inst != nil {
		s.inst.Metrics().RecordCallbackProcessed(ctx, site, false)
	}
	return s.fail(span, site, step, err)
}
