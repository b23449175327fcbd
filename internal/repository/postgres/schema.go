package postgres

const schema = `
CREATE TABLE IF NOT EXISTS products (
    seq BIGSERIAL UNIQUE,
    id TEXT PRIMARY KEY,
    seller_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT '',
    starting_bid NUMERIC(12,2) NOT NULL CHECK (starting_bid > 0),
    current_highest_bid NUMERIC(12,2) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bids (
    seq BIGSERIAL UNIQUE,
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    bidder_id TEXT NOT NULL,
    amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_seller_id ON products(seller_id);
CREATE INDEX IF NOT EXISTS idx_bids_product_amount ON bids(product_id, amount DESC);
CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
`
