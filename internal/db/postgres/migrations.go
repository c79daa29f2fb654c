package postgres

// SQL-миграции встроены в код для упрощения деплоя.
// Номера версий не переиспользуются: новая схема требует новой миграции.

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "users", migration001Users},
	{2, "ledger", migration002Ledger},
	{3, "photo_unlocks", migration003PhotoUnlocks},
	{4, "matching", migration004Matching},
	{5, "plans", migration005Plans},
	{6, "payments", migration006Payments},
}

// Баланс и состояние подписки живут прямо в строке пользователя (1:1).
// CHECK (balance >= 0) штатно не срабатывает: списание условное (balance >= amount).
var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    initial_balance BIGINT NOT NULL DEFAULT 0,
    plan VARCHAR(32) NOT NULL DEFAULT 'none',
    sub_status VARCHAR(32) NOT NULL DEFAULT 'none',
    current_period_end TIMESTAMPTZ,
    cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_renewal_due
    ON users(current_period_end) WHERE sub_status = 'active';
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    delta BIGINT NOT NULL CHECK (delta <> 0),
    balance_after BIGINT NOT NULL CHECK (balance_after >= 0),
    reason VARCHAR(32) NOT NULL,
    related_entity_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_user_created
    ON ledger_entries(user_id, created_at DESC, id DESC);
`

var migration003PhotoUnlocks = `
CREATE TABLE IF NOT EXISTS photo_unlocks (
    id BIGSERIAL PRIMARY KEY,
    subject_id BIGINT NOT NULL REFERENCES users(id),
    object_id BIGINT NOT NULL REFERENCES users(id),
    cost BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_photo_unlocks_pair UNIQUE (subject_id, object_id)
);
`

var migration004Matching = `
CREATE TABLE IF NOT EXISTS interest_signals (
    id BIGSERIAL PRIMARY KEY,
    from_user_id BIGINT NOT NULL REFERENCES users(id),
    to_user_id BIGINT NOT NULL REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_interest_signals_edge UNIQUE (from_user_id, to_user_id)
);
CREATE TABLE IF NOT EXISTS matches (
    id BIGSERIAL PRIMARY KEY,
    participant_low BIGINT NOT NULL REFERENCES users(id),
    participant_high BIGINT NOT NULL REFERENCES users(id),
    initiated_by BIGINT NOT NULL,
    matched_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    unmatched_at TIMESTAMPTZ,
    CONSTRAINT uq_matches_pair UNIQUE (participant_low, participant_high),
    CONSTRAINT ck_matches_order CHECK (participant_low < participant_high)
);
CREATE INDEX IF NOT EXISTS idx_matches_high ON matches(participant_high);
`

// Каталог тарифов засевается здесь, а не лениво при первом запросе:
// миграция выполняется один раз вне горячего пути.
var migration005Plans = `
CREATE TABLE IF NOT EXISTS plans (
    id VARCHAR(32) PRIMARY KEY,
    title VARCHAR(64) NOT NULL,
    price_minor BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
INSERT INTO plans (id, title, price_minor) VALUES
    ('premium', 'Premium', 49900),
    ('vip', 'VIP', 99900)
ON CONFLICT (id) DO NOTHING;
`

var migration006Payments = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    provider_reference TEXT NOT NULL,
    user_id BIGINT NOT NULL REFERENCES users(id),
    amount BIGINT NOT NULL,
    kind VARCHAR(16) NOT NULL,
    product_id VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'claimed',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    applied_at TIMESTAMPTZ,
    CONSTRAINT uq_payments_provider_reference UNIQUE (provider_reference)
);
`
