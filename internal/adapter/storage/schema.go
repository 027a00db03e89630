package storage

const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	price DECIMAL(10,2) NOT NULL,
	quantity INT NOT NULL DEFAULT 0,
	version INT NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	user_id VARCHAR(64) PRIMARY KEY,
	total_quantity INT NOT NULL DEFAULT 0,
	total_value DECIMAL(20,4) NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transactions (
	id CHAR(36) PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL,
	product_id VARCHAR(64) NOT NULL,
	type ENUM('purchase', 'sale') NOT NULL,
	quantity INT NOT NULL,
	price DECIMAL(10,2) NOT NULL,
	total_amount DECIMAL(10,2) NOT NULL,
	transaction_date DATE NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uq_user_date (user_id, transaction_date),
	KEY idx_transactions_user_type (user_id, type)
);
`
