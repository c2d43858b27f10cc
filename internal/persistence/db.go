// Package persistence provides SQLite-based world state storage. Saves are
// full-replace within a transaction, so a loaded world is always a consistent
// tick boundary.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/magnate/internal/ai"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/production"
	"github.com/talgya/magnate/internal/sim"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		cash REAL NOT NULL,
		ai INTEGER NOT NULL,
		inventory_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS competitors (
		company_id INTEGER PRIMARY KEY,
		personality TEXT NOT NULL,
		trust REAL NOT NULL,
		hostility REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buildings (
		id INTEGER PRIMARY KEY,
		definition_id TEXT NOT NULL,
		owner INTEGER NOT NULL,
		status TEXT NOT NULL,
		paused INTEGER NOT NULL,
		config_error INTEGER NOT NULL,
		construction_progress INTEGER NOT NULL,
		slots_json TEXT NOT NULL,
		profit_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		company_id INTEGER NOT NULL,
		goods TEXT NOT NULL,
		side INTEGER NOT NULL,
		price REAL NOT NULL,
		original_qty INTEGER NOT NULL,
		remaining_qty INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prices (
		goods TEXT PRIMARY KEY,
		price REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS autotrade (
		goods TEXT PRIMARY KEY,
		policy_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		company_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		detail TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_buildings_owner ON buildings(owner);
	CREATE INDEX IF NOT EXISTS idx_orders_goods ON orders(goods);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveState writes a complete world snapshot (full replace).
func (db *DB) SaveState(st sim.State) error {
	slog.Info("saving world state",
		"tick", st.Tick,
		"companies", len(st.Companies),
		"buildings", len(st.Buildings),
		"open_orders", len(st.Orders))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"companies", "competitors", "buildings", "orders", "prices", "autotrade", "events"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := saveCompanies(tx, st.Companies); err != nil {
		return fmt.Errorf("save companies: %w", err)
	}
	if err := saveCompetitors(tx, st.Competitors); err != nil {
		return fmt.Errorf("save competitors: %w", err)
	}
	if err := saveBuildings(tx, st.Buildings); err != nil {
		return fmt.Errorf("save buildings: %w", err)
	}
	if err := saveOrders(tx, st.Orders); err != nil {
		return fmt.Errorf("save orders: %w", err)
	}
	if err := savePrices(tx, st.Prices); err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	if err := saveAutoTrade(tx, st.AutoTrade); err != nil {
		return fmt.Errorf("save autotrade: %w", err)
	}
	if err := saveEvents(tx, st.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES ('last_tick', ?)",
		strconv.FormatUint(st.Tick, 10),
	); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved")
	return nil
}

func saveCompanies(tx *sqlx.Tx, companies []company.Company) error {
	stmt, err := tx.Preparex(`INSERT INTO companies
		(id, name, cash, ai, inventory_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range companies {
		co := &companies[i]
		invJSON, _ := json.Marshal(co.Inventory)
		if _, err := stmt.Exec(co.ID, co.Name, co.Cash, boolInt(co.AI), string(invJSON)); err != nil {
			return fmt.Errorf("insert company %d: %w", co.ID, err)
		}
	}
	return nil
}

func saveCompetitors(tx *sqlx.Tx, competitors []sim.CompetitorState) error {
	for _, c := range competitors {
		_, err := tx.Exec(`INSERT INTO competitors
			(company_id, personality, trust, hostility) VALUES (?, ?, ?, ?)`,
			c.CompanyID, c.Personality, c.Trust, c.Hostility)
		if err != nil {
			return fmt.Errorf("insert competitor %d: %w", c.CompanyID, err)
		}
	}
	return nil
}

func saveBuildings(tx *sqlx.Tx, buildings []production.Building) error {
	stmt, err := tx.Preparex(`INSERT INTO buildings
		(id, definition_id, owner, status, paused, config_error,
		 construction_progress, slots_json, profit_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range buildings {
		b := &buildings[i]
		slotsJSON, _ := json.Marshal(b.Slots)
		profitJSON, _ := json.Marshal(b.Profit)
		_, err := stmt.Exec(
			b.ID, string(b.DefinitionID), b.Owner, string(b.Status),
			boolInt(b.Paused), boolInt(b.ConfigError), b.ConstructionProgress,
			string(slotsJSON), string(profitJSON),
		)
		if err != nil {
			return fmt.Errorf("insert building %d: %w", b.ID, err)
		}
	}
	return nil
}

func saveOrders(tx *sqlx.Tx, orders []market.Order) error {
	stmt, err := tx.Preparex(`INSERT INTO orders
		(id, company_id, goods, side, price, original_qty, remaining_qty, status, created_tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range orders {
		o := &orders[i]
		_, err := stmt.Exec(
			o.ID, o.CompanyID, string(o.Goods), int(o.Side), o.Price,
			o.OriginalQty, o.RemainingQty, o.Status, o.CreatedTick,
		)
		if err != nil {
			return fmt.Errorf("insert order %d: %w", o.ID, err)
		}
	}
	return nil
}

func savePrices(tx *sqlx.Tx, prices map[catalog.GoodsID]float64) error {
	for goods, p := range prices {
		if _, err := tx.Exec("INSERT INTO prices (goods, price) VALUES (?, ?)", string(goods), p); err != nil {
			return fmt.Errorf("insert price %q: %w", goods, err)
		}
	}
	return nil
}

func saveAutoTrade(tx *sqlx.Tx, policies map[catalog.GoodsID]sim.AutoTradePolicy) error {
	for goods, p := range policies {
		policyJSON, _ := json.Marshal(p)
		if _, err := tx.Exec(
			"INSERT INTO autotrade (goods, policy_json) VALUES (?, ?)",
			string(goods), string(policyJSON),
		); err != nil {
			return fmt.Errorf("insert autotrade %q: %w", goods, err)
		}
	}
	return nil
}

func saveEvents(tx *sqlx.Tx, events []ai.Event) error {
	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, company_id, type, severity, detail) VALUES (?, ?, ?, ?, ?)",
			e.Tick, e.CompanyID, string(e.Type), string(e.Severity), e.Detail,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// HasState reports whether a saved world exists in the database.
func (db *DB) HasState() (bool, error) {
	_, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoadState reads the saved world back into a sim.State.
func (db *DB) LoadState() (sim.State, error) {
	st := sim.State{
		Prices:    make(map[catalog.GoodsID]float64),
		AutoTrade: make(map[catalog.GoodsID]sim.AutoTradePolicy),
	}

	tickStr, err := db.GetMeta("last_tick")
	if err != nil {
		return st, fmt.Errorf("load meta: %w", err)
	}
	st.Tick, err = strconv.ParseUint(tickStr, 10, 64)
	if err != nil {
		return st, fmt.Errorf("parse last_tick %q: %w", tickStr, err)
	}

	if err := db.loadCompanies(&st); err != nil {
		return st, err
	}
	if err := db.conn.Select(&st.Competitors,
		"SELECT company_id, personality, trust, hostility FROM competitors ORDER BY company_id"); err != nil {
		return st, fmt.Errorf("load competitors: %w", err)
	}
	if err := db.loadBuildings(&st); err != nil {
		return st, err
	}
	if err := db.loadOrders(&st); err != nil {
		return st, err
	}
	if err := db.loadPrices(&st); err != nil {
		return st, err
	}
	if err := db.loadAutoTrade(&st); err != nil {
		return st, err
	}
	if err := db.loadEvents(&st); err != nil {
		return st, err
	}

	slog.Info("world state loaded",
		"tick", st.Tick,
		"companies", len(st.Companies),
		"buildings", len(st.Buildings),
		"open_orders", len(st.Orders))
	return st, nil
}

func (db *DB) loadCompanies(st *sim.State) error {
	rows, err := db.conn.Queryx("SELECT id, name, cash, ai, inventory_json FROM companies ORDER BY id")
	if err != nil {
		return fmt.Errorf("load companies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      uint64
			name    string
			cash    float64
			aiFlag  int
			invJSON string
		)
		if err := rows.Scan(&id, &name, &cash, &aiFlag, &invJSON); err != nil {
			return fmt.Errorf("scan company: %w", err)
		}
		co := company.Company{
			ID:   company.ID(id),
			Name: name,
			Cash: cash,
			AI:   aiFlag != 0,
		}
		if err := json.Unmarshal([]byte(invJSON), &co.Inventory); err != nil {
			return fmt.Errorf("company %d inventory: %w", id, err)
		}
		if co.Inventory == nil {
			co.Inventory = make(map[catalog.GoodsID]*company.Stock)
		}
		st.Companies = append(st.Companies, co)
	}
	return rows.Err()
}

func (db *DB) loadBuildings(st *sim.State) error {
	rows, err := db.conn.Queryx(`SELECT id, definition_id, owner, status, paused,
		config_error, construction_progress, slots_json, profit_json
		FROM buildings ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load buildings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b                   production.Building
			defID, status       string
			paused, configError int
			slotsJSON, profJSON string
		)
		if err := rows.Scan(&b.ID, &defID, &b.Owner, &status, &paused,
			&configError, &b.ConstructionProgress, &slotsJSON, &profJSON); err != nil {
			return fmt.Errorf("scan building: %w", err)
		}
		b.DefinitionID = catalog.BuildingID(defID)
		b.Status = production.Status(status)
		b.Paused = paused != 0
		b.ConfigError = configError != 0
		if err := json.Unmarshal([]byte(slotsJSON), &b.Slots); err != nil {
			return fmt.Errorf("building %d slots: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(profJSON), &b.Profit); err != nil {
			return fmt.Errorf("building %d profit: %w", b.ID, err)
		}
		st.Buildings = append(st.Buildings, b)
	}
	return rows.Err()
}

func (db *DB) loadOrders(st *sim.State) error {
	rows, err := db.conn.Queryx(`SELECT id, company_id, goods, side, price,
		original_qty, remaining_qty, status, created_tick FROM orders ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o             market.Order
			goods, status string
			side          int
		)
		if err := rows.Scan(&o.ID, &o.CompanyID, &goods, &side, &o.Price,
			&o.OriginalQty, &o.RemainingQty, &status, &o.CreatedTick); err != nil {
			return fmt.Errorf("scan order: %w", err)
		}
		o.Goods = catalog.GoodsID(goods)
		o.Side = market.Side(side)
		o.Status = status
		st.Orders = append(st.Orders, o)
	}
	return rows.Err()
}

func (db *DB) loadPrices(st *sim.State) error {
	rows, err := db.conn.Queryx("SELECT goods, price FROM prices")
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			goods string
			price float64
		)
		if err := rows.Scan(&goods, &price); err != nil {
			return fmt.Errorf("scan price: %w", err)
		}
		st.Prices[catalog.GoodsID(goods)] = price
	}
	return rows.Err()
}

func (db *DB) loadAutoTrade(st *sim.State) error {
	rows, err := db.conn.Queryx("SELECT goods, policy_json FROM autotrade")
	if err != nil {
		return fmt.Errorf("load autotrade: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var goods, policyJSON string
		if err := rows.Scan(&goods, &policyJSON); err != nil {
			return fmt.Errorf("scan autotrade: %w", err)
		}
		var p sim.AutoTradePolicy
		if err := json.Unmarshal([]byte(policyJSON), &p); err != nil {
			return fmt.Errorf("autotrade %q: %w", goods, err)
		}
		st.AutoTrade[catalog.GoodsID(goods)] = p
	}
	return rows.Err()
}

func (db *DB) loadEvents(st *sim.State) error {
	rows, err := db.conn.Queryx("SELECT tick, company_id, type, severity, detail FROM events ORDER BY id")
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e             ai.Event
			typ, severity string
		)
		if err := rows.Scan(&e.Tick, &e.CompanyID, &typ, &severity, &e.Detail); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		e.Type = ai.EventType(typ)
		e.Severity = ai.Severity(severity)
		st.Events = append(st.Events, e)
	}
	return rows.Err()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
