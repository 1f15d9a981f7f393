package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/infra/metrics"
)

// Compile-time check
var _ DownloadUseCase = (*downloadUC)(nil)

const driveDownloadURL = "https://drive.google.com/uc?export=download&id=%s&confirm=t"

// DownloadLink is what the storefront hands to the browser.
type DownloadLink struct {
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
	Direct      bool   `json:"direct"`
}

// Redemption is the result of presenting a download token. When Valid is
// false Err says why.
type Redemption struct {
	Valid    bool
	FileID   string
	Filename string
	Err      *domain.GrantValidationError
}

// DownloadUseCase issues and redeems single-use download links.
type DownloadUseCase interface {
	CreateGrant(ctx context.Context, contentID, title, assetURL, userID string) (*DownloadLink, error)
	Redeem(ctx context.Context, token string) *Redemption
	HasActiveGrant(ctx context.Context, contentID, userID string) (bool, error)
	AssetURL(fileID string) string
}

type downloadUC struct {
	docs    repository.DocumentStore
	baseURL string
	clock   func() time.Time
	log     *zerolog.Logger
}

// NewDownloadUseCase builds the service. publicBaseURL is the origin the
// download route is served from.
func NewDownloadUseCase(docs repository.DocumentStore, publicBaseURL string, logger *zerolog.Logger) *downloadUC {
	l := logger.With().Str("component", "Downloads").Logger()
	return &downloadUC{
		docs:    docs,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		clock:   time.Now,
		log:     &l,
	}
}

// WithClock replaces the time source, for tests.
func (u *downloadUC) WithClock(now func() time.Time) *downloadUC {
	u.clock = now
	return u
}

func (u *downloadUC) CreateGrant(ctx context.Context, contentID, title, assetURL, userID string) (*DownloadLink, error) {
	defer logging.TraceDuration(u.log, "DownloadUC.CreateGrant")()

	if strings.TrimSpace(assetURL) == "" {
		return nil, fmt.Errorf("%w: asset url is required", domain.ErrInvalidArgument)
	}
	filename := model.DownloadFilename(title)

	if !model.IsDriveURL(assetURL) {
		metrics.IncDownloadGrant("direct")
		return &DownloadLink{DownloadURL: assetURL, Filename: filename, Direct: true}, nil
	}

	fileID, ok := model.ExtractDriveFileID(assetURL)
	if !ok {
		metrics.IncDownloadGrant("invalid")
		return nil, fmt.Errorf("%w: unrecognized drive url", domain.ErrInvalidArgument)
	}

	token, err := GenerateDownloadToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := u.clock()
	grant := model.DownloadGrant{
		Token:        token,
		ContentID:    contentID,
		ContentTitle: title,
		FileID:       fileID,
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(model.DownloadGrantTTL),
	}
	doc, err := toDocument(grant)
	if err != nil {
		return nil, err
	}
	created, err := u.docs.Create(ctx, model.DownloadGrantPath(token), doc)
	if err != nil {
		return nil, fmt.Errorf("store download grant: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%w: download token collision", domain.ErrAlreadyExists)
	}

	metrics.IncDownloadGrant("created")
	logging.With(ctx, u.log).Info().Str("content_id", contentID).Msg("download link created")

	q := url.Values{}
	q.Set("token", token)
	q.Set("filename", filename)
	return &DownloadLink{
		DownloadURL: u.baseURL + "/api/download?" + q.Encode(),
		Filename:    filename,
	}, nil
}

func (u *downloadUC) Redeem(ctx context.Context, token string) *Redemption {
	defer logging.TraceDuration(u.log, "DownloadUC.Redeem")()
	r := u.redeem(ctx, token)
	if r.Valid {
		metrics.IncDownloadGrant("redeemed")
	} else {
		metrics.IncDownloadGrant(string(r.Err.Kind))
	}
	return r
}

func (u *downloadUC) redeem(ctx context.Context, token string) *Redemption {
	if token == "" {
		return refused(domain.GrantInvalid, nil)
	}
	path := model.DownloadGrantPath(token)
	doc, err := u.docs.Get(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return refused(domain.GrantInvalid, nil)
	}
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("failed to read download grant")
		return refused(domain.GrantFailure, err)
	}
	var grant model.DownloadGrant
	if err := fromDocument(doc, &grant); err != nil {
		return refused(domain.GrantFailure, err)
	}
	if grant.Used {
		return refused(domain.GrantUsed, nil)
	}
	now := u.clock()
	if grant.Expired(now) {
		return refused(domain.GrantExpired, nil)
	}

	won, err := u.docs.CompareAndMerge(ctx, path, "used", false, repository.Document{
		"used":   true,
		"usedAt": now,
	})
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("failed to mark download grant used")
		return refused(domain.GrantFailure, err)
	}
	if !won {
		return refused(domain.GrantUsed, nil)
	}
	return &Redemption{Valid: true, FileID: grant.FileID, Filename: model.DownloadFilename(grant.ContentTitle)}
}

func (u *downloadUC) HasActiveGrant(ctx context.Context, contentID, userID string) (bool, error) {
	defer logging.TraceDuration(u.log, "DownloadUC.HasActiveGrant")()
	docs, err := u.docs.Query(ctx, "downloadLinks", "contentId", contentID)
	if err != nil {
		return false, err
	}
	now := u.clock()
	for _, doc := range docs {
		var g model.DownloadGrant
		if err := fromDocument(doc, &g); err != nil {
			continue
		}
		if g.UserID == userID && !g.Used && !g.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (u *downloadUC) AssetURL(fileID string) string {
	return fmt.Sprintf(driveDownloadURL, url.QueryEscape(fileID))
}

func refused(kind domain.GrantKind, err error) *Redemption {
	return &Redemption{Err: &domain.GrantValidationError{Kind: kind, Err: err}}
}
