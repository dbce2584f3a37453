package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FynbosAI/palettefineart-sub006/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const threadColumns = `id, quote_id, shipment_id, organization_id, shipper_branch_org_id,
	gallery_branch_org_id, conversation_sid, unique_name, status, metadata, created_by,
	conversation_type, initiator_shipper_org_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*ChatThread, error) {
	var t ChatThread
	var metadata []byte
	err := row.Scan(
		&t.ID, &t.QuoteID, &t.ShipmentID, &t.OrganizationID, &t.ShipperBranchOrgID,
		&t.GalleryBranchOrgID, &t.ConversationSID, &t.UniqueName, &t.Status, &metadata,
		&t.CreatedBy, &t.ConversationType, &t.InitiatorShipperOrgID, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.Metadata = json.RawMessage(metadata)
	return &t, nil
}

// GetThreadByQuoteScope finds a thread by quote id plus exact branch-org scope.
// IS NOT DISTINCT FROM makes nil filters match stored NULLs rather than nothing.
func (s *PostgresStore) GetThreadByQuoteScope(ctx context.Context, quoteID string, shipperOrgID, galleryOrgID *string) (*ChatThread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads
		WHERE quote_id = $1
			AND shipper_branch_org_id IS NOT DISTINCT FROM $2
			AND gallery_branch_org_id IS NOT DISTINCT FROM $3
		ORDER BY created_at DESC LIMIT 1`
	return scanThread(s.db.QueryRowContext(ctx, query, quoteID, shipperOrgID, galleryOrgID))
}

func (s *PostgresStore) GetThreadByShipmentScope(ctx context.Context, shipmentID string, shipperOrgID, galleryOrgID *string) (*ChatThread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads
		WHERE shipment_id = $1
			AND shipper_branch_org_id IS NOT DISTINCT FROM $2
			AND gallery_branch_org_id IS NOT DISTINCT FROM $3
		ORDER BY created_at DESC LIMIT 1`
	return scanThread(s.db.QueryRowContext(ctx, query, shipmentID, shipperOrgID, galleryOrgID))
}

func (s *PostgresStore) GetThreadByQuoteID(ctx context.Context, quoteID string) (*ChatThread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads
		WHERE quote_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanThread(s.db.QueryRowContext(ctx, query, quoteID))
}

func (s *PostgresStore) GetThreadByUniqueName(ctx context.Context, uniqueName string) (*ChatThread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads WHERE unique_name = $1`
	return scanThread(s.db.QueryRowContext(ctx, query, uniqueName))
}

func (s *PostgresStore) GetThreadByID(ctx context.Context, id string) (*ChatThread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads WHERE id = $1`
	return scanThread(s.db.QueryRowContext(ctx, query, id))
}

// CreateThread inserts a thread row. A duplicate unique_name surfaces as
// ErrConflict so callers can re-run their lookup.
func (s *PostgresStore) CreateThread(ctx context.Context, t ChatThread) (*ChatThread, error) {
	if t.ID == "" {
		t.ID = util.NewID("thr")
	}
	if t.Status == "" {
		t.Status = "active"
	}
	metadata := []byte(t.Metadata)
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	query := `INSERT INTO chat_threads (
			id, quote_id, shipment_id, organization_id, shipper_branch_org_id,
			gallery_branch_org_id, conversation_sid, unique_name, status, metadata,
			created_by, conversation_type, initiator_shipper_org_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING ` + threadColumns
	created, err := scanThread(s.db.QueryRowContext(ctx, query,
		t.ID, t.QuoteID, t.ShipmentID, t.OrganizationID, t.ShipperBranchOrgID,
		t.GalleryBranchOrgID, t.ConversationSID, t.UniqueName, t.Status, metadata,
		t.CreatedBy, t.ConversationType, t.InitiatorShipperOrgID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create thread %s: %w", t.UniqueName, ErrConflict)
		}
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateThreadMetadata(ctx context.Context, id string, metadata json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_threads SET metadata=$2, updated_at=NOW() WHERE id=$1`, id, []byte(metadata))
	if err != nil {
		return fmt.Errorf("update thread metadata: %w", err)
	}
	return nil
}

// UpdateThreadScope persists scope columns and metadata together. This is the
// only path that changes a thread's top-level scope after creation.
func (s *PostgresStore) UpdateThreadScope(ctx context.Context, id string, shipmentID, shipperOrgID, galleryOrgID *string, metadata json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_threads
		SET shipment_id=$2, shipper_branch_org_id=$3, gallery_branch_org_id=$4,
			metadata=$5, updated_at=NOW()
		WHERE id=$1
	`, id, shipmentID, shipperOrgID, galleryOrgID, []byte(metadata))
	if err != nil {
		return fmt.Errorf("update thread scope: %w", err)
	}
	return nil
}

// GetParticipantRecord returns the active (not departed) participant row, if any.
func (s *PostgresStore) GetParticipantRecord(ctx context.Context, threadID, userID string) (*ChatThreadParticipant, error) {
	var p ChatThreadParticipant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, user_id, organization_id, role, identity, role_sid, left_at, created_at
		FROM chat_thread_participants
		WHERE thread_id=$1 AND user_id=$2 AND left_at IS NULL
	`, threadID, userID).Scan(&p.ID, &p.ThreadID, &p.UserID, &p.OrganizationID, &p.Role, &p.Identity, &p.RoleSID, &p.LeftAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

// UpsertParticipant inserts or refreshes the active participant row keyed by
// the partial unique index on (thread_id, user_id) WHERE left_at IS NULL.
func (s *PostgresStore) UpsertParticipant(ctx context.Context, p ChatThreadParticipant) (*ChatThreadParticipant, error) {
	if p.ID == "" {
		p.ID = util.NewID("ctp")
	}
	var out ChatThreadParticipant
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_thread_participants (id, thread_id, user_id, organization_id, role, identity, role_sid)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (thread_id, user_id) WHERE left_at IS NULL
		DO UPDATE SET organization_id=EXCLUDED.organization_id, role=EXCLUDED.role,
			identity=EXCLUDED.identity, role_sid=EXCLUDED.role_sid
		RETURNING id, thread_id, user_id, organization_id, role, identity, role_sid, left_at, created_at
	`, p.ID, p.ThreadID, p.UserID, p.OrganizationID, p.Role, p.Identity, p.RoleSID).
		Scan(&out.ID, &out.ThreadID, &out.UserID, &out.OrganizationID, &out.Role, &out.Identity, &out.RoleSID, &out.LeftAt, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert participant: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) GetMembershipForOrg(ctx context.Context, userID, orgID string) (*Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, organization_id, role, created_at
		FROM organization_members WHERE user_id=$1 AND organization_id=$2
	`, userID, orgID).Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetMembersForOrganization(ctx context.Context, orgID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, organization_id, role, created_at
		FROM organization_members WHERE organization_id=$1 ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) GetOrganizationByID(ctx context.Context, id string) (*Organization, error) {
	var o Organization
	var logoKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, logo_key, created_at FROM organizations WHERE id=$1
	`, id).Scan(&o.ID, &o.Name, &o.Type, &logoKey, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	o.LogoKey = logoKey.String
	return &o, nil
}

func (s *PostgresStore) GetProfileByUserID(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, full_name FROM profiles WHERE user_id=$1
	`, userID).Scan(&p.UserID, &p.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetQuoteContext(ctx context.Context, id string) (*Quote, error) {
	var q Quote
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, owner_org_id, shipment_id, submitted_by FROM quotes WHERE id=$1
	`, id).Scan(&q.ID, &q.Title, &q.OwnerOrgID, &q.ShipmentID, &q.SubmittedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return &q, nil
}

// EnsureThreadShipper upserts a shipper registration. Role is overwritten on
// conflict so a stale write never leaves a peer stuck as initiator.
func (s *PostgresStore) EnsureThreadShipper(ctx context.Context, threadID, shipperOrgID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_thread_shippers (thread_id, shipper_org_id, role)
		VALUES ($1,$2,$3)
		ON CONFLICT (thread_id, shipper_org_id) DO UPDATE SET role=EXCLUDED.role
	`, threadID, shipperOrgID, role)
	if err != nil {
		return fmt.Errorf("ensure thread shipper: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThreadShippers(ctx context.Context, threadID string) ([]ThreadShipper, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, shipper_org_id, role, created_at
		FROM chat_thread_shippers WHERE thread_id=$1 ORDER BY created_at
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list thread shippers: %w", err)
	}
	defer rows.Close()

	var shippers []ThreadShipper
	for rows.Next() {
		var ts ThreadShipper
		if err := rows.Scan(&ts.ThreadID, &ts.ShipperOrgID, &ts.Role, &ts.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thread shipper: %w", err)
		}
		shippers = append(shippers, ts)
	}
	return shippers, rows.Err()
}

func (s *PostgresStore) ListGalleryBidsForQuote(ctx context.Context, quoteID string) ([]GalleryBid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quote_id, gallery_org_id, amount, currency, status, updated_at
		FROM gallery_bids WHERE quote_id=$1 ORDER BY updated_at DESC
	`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("list gallery bids: %w", err)
	}
	defer rows.Close()

	var bids []GalleryBid
	for rows.Next() {
		var b GalleryBid
		if err := rows.Scan(&b.ID, &b.QuoteID, &b.GalleryOrgID, &b.Amount, &b.Currency, &b.Status, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan gallery bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
