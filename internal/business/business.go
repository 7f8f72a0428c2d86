// Package business wires configuration, storage, and collaborators into the
// running application entry points.
package business

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	"github.com/requestline/intake-bot/internal/approval"
	approvalsql "github.com/requestline/intake-bot/internal/approval/sql"
	"github.com/requestline/intake-bot/internal/auth"
	authsql "github.com/requestline/intake-bot/internal/auth/sql"
	"github.com/requestline/intake-bot/internal/business/server"
	cataloghttp "github.com/requestline/intake-bot/internal/catalog/httpapi"
	catalogsql "github.com/requestline/intake-bot/internal/catalog/sql"
	"github.com/requestline/intake-bot/internal/config"
	"github.com/requestline/intake-bot/internal/conversation"
	conversationvalkey "github.com/requestline/intake-bot/internal/conversation/valkey"
	fulfillmenthttp "github.com/requestline/intake-bot/internal/fulfillment/httpapi"
	"github.com/requestline/intake-bot/internal/intent"
	transportwebhook "github.com/requestline/intake-bot/internal/transport/webhook"
)

// Main starts the HTTP API server.
func Main(ctx context.Context, cfg *config.Config) error {
	api, closeFn, err := initAPI(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the application: %w", err)
	}
	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, api.api)
}

// app holds the wired services shared by the server and housekeeper entry
// points.
type app struct {
	api           *server.API
	conversations *conversation.Orchestrator
}

func initAPI(ctx context.Context, cfg *config.Config) (_ *app, closeFn func(), _ error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	valkeyClient, err := newValkeyClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	sessionRepo := conversationvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix)
	policyRepo := approvalsql.NewRepository(db, approval.Policy(cfg.Approval.DefaultPolicy))
	endpointRepo := catalogsql.NewRepository(db)
	userRepo := authsql.NewRepository(db)

	vocab, err := intent.LoadVocabulary(cfg.Conversation.VocabularyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading vocabulary: %w", err)
	}

	parser, err := intent.NewParser(vocab)
	if err != nil {
		return nil, nil, fmt.Errorf("creating intent parser: %w", err)
	}

	catalogClient, err := newCatalogClient(cfg, endpointRepo)
	if err != nil {
		return nil, nil, err
	}

	fulfillmentAPIKey, err := commoncfg.LoadValueFromSourceRef(cfg.Fulfillment.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("loading fulfillment api key: %w", err)
	}

	submitter := fulfillmenthttp.NewClient(cfg.Fulfillment.BaseURL, string(fulfillmentAPIKey), nil)

	transportToken, err := commoncfg.LoadValueFromSourceRef(cfg.Transport.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("loading transport token: %w", err)
	}

	tp := transportwebhook.NewClient(cfg.Transport.PushURL, string(transportToken), nil)

	orchestrator := conversation.NewOrchestrator(
		&cfg.Conversation,
		sessionRepo,
		parser,
		catalogClient,
		catalogClient,
		approval.NewService(policyRepo, submitter),
		policyRepo,
		tp,
	)

	tokenSecret, err := commoncfg.LoadValueFromSourceRef(cfg.Admin.TokenSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("loading admin token secret: %w", err)
	}

	authSvc, err := auth.NewService(userRepo, []byte(tokenSecret), cfg.Admin.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("creating auth service: %w", err)
	}

	webhookToken, err := commoncfg.LoadValueFromSourceRef(cfg.Webhook.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("loading webhook token: %w", err)
	}

	senderSalt, err := commoncfg.LoadValueFromSourceRef(cfg.Webhook.SenderHashSalt)
	if err != nil {
		return nil, nil, fmt.Errorf("loading sender hash salt: %w", err)
	}

	a := &app{
		api: &server.API{
			Conversations: orchestrator,
			Auth:          authSvc,
			Policies:      policyRepo,
			Endpoints:     endpointRepo,
			WebhookToken:  string(webhookToken),
			SenderSalt:    string(senderSalt),
		},
		conversations: orchestrator,
	}

	closeFn = func() {
		valkeyClient.Close()
		db.Close()
	}

	return a, closeFn, nil
}

func newValkeyClient(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

func newCatalogClient(cfg *config.Config, endpoints cataloghttp.EndpointSource) (*cataloghttp.Client, error) {
	moviesAPIKey, err := commoncfg.LoadValueFromSourceRef(cfg.Catalog.Movies.APIKey)
	if err != nil {
		return nil, fmt.Errorf("loading movie catalog api key: %w", err)
	}

	seriesAPIKey, err := commoncfg.LoadValueFromSourceRef(cfg.Catalog.Series.APIKey)
	if err != nil {
		return nil, fmt.Errorf("loading series catalog api key: %w", err)
	}

	// The configured services act as the fallback when the endpoint
	// registry has no enabled row for a kind.
	static := cataloghttp.StaticResolver{
		Movies: cataloghttp.Service{BaseURL: cfg.Catalog.Movies.BaseURL, APIKey: string(moviesAPIKey)},
		Series: cataloghttp.Service{BaseURL: cfg.Catalog.Series.BaseURL, APIKey: string(seriesAPIKey)},
	}

	return cataloghttp.NewClient(cataloghttp.NewRegistryResolver(endpoints, static), nil), nil
}
