package store

// schema is applied on every open; all statements are idempotent.
//
// sync_failures carries the durable replication failure queue. Its
// uniqueness key is intentionally partial: at most one *pending* row may
// exist per (user, action, target) so repeated failures for the same logical
// task merge into it, while completed and abandoned rows are kept forever as
// an audit trail and never flip back to pending.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT    NOT NULL UNIQUE,
	password_hash TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	product_id  INTEGER PRIMARY KEY,
	name        TEXT    NOT NULL UNIQUE,
	description TEXT    NOT NULL DEFAULT '',
	price       REAL    NOT NULL
);

CREATE TABLE IF NOT EXISTS product_inventory (
	product_id INTEGER PRIMARY KEY REFERENCES products(product_id),
	stock      INTEGER NOT NULL CHECK (stock >= 0)
);

CREATE TABLE IF NOT EXISTS carts (
	cart_id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL UNIQUE REFERENCES users(user_id)
);

CREATE TABLE IF NOT EXISTS cart_items (
	cart_id    INTEGER NOT NULL REFERENCES carts(cart_id),
	product_id INTEGER NOT NULL REFERENCES products(product_id),
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (cart_id, product_id)
);

CREATE TABLE IF NOT EXISTS orders (
	order_id     INTEGER   PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER   NOT NULL REFERENCES users(user_id),
	total_amount REAL      NOT NULL,
	status       TEXT      NOT NULL DEFAULT 'Pending',
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id   INTEGER NOT NULL REFERENCES orders(order_id),
	product_id INTEGER NOT NULL REFERENCES products(product_id),
	quantity   INTEGER NOT NULL,
	price      REAL    NOT NULL
);

CREATE TABLE IF NOT EXISTS applied_mutations (
	mutation_id   TEXT      PRIMARY KEY,
	action        TEXT      NOT NULL,
	source_server TEXT      NOT NULL,
	applied_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_failures (
	sync_id         INTEGER   PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER   NOT NULL,
	action          TEXT      NOT NULL,
	data            TEXT      NOT NULL,
	source_server   TEXT      NOT NULL,
	target_server   TEXT      NOT NULL,
	progress        INTEGER   NOT NULL DEFAULT 0,
	additional_data TEXT,
	attempts        INTEGER   NOT NULL DEFAULT 1,
	last_attempt    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	status          TEXT      NOT NULL DEFAULT 'pending'
);

CREATE UNIQUE INDEX IF NOT EXISTS sync_failures_pending_task
	ON sync_failures (user_id, action, target_server)
	WHERE status = 'pending';
`
