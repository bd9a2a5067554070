package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
)

// SaveSnapshot stores the guild's queue, replacing any previous snapshot.
func (d *DB) SaveSnapshot(guild snowflake.ID, snap queue.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	_, err = d.db.Exec(`
		INSERT INTO queue_snapshots (guild_id, data, track_count, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET data = excluded.data, track_count = excluded.track_count, updated_at = excluded.updated_at
	`, guild.String(), string(data), len(snap.Tracks), now)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", guild, err)
	}

	if err := d.setMeta("last_saved", now); err != nil {
		log.Warn().Err(err).Msg("Failed to record save time")
	}
	return nil
}

// LoadSnapshot returns the guild's stored queue; ok is false if none exists.
func (d *DB) LoadSnapshot(guild snowflake.ID) (snap queue.Snapshot, ok bool, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return snap, false, ErrNotOpen
	}

	var data string
	err = d.db.QueryRow("SELECT data FROM queue_snapshots WHERE guild_id = ?", guild.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("load snapshot for %s: %w", guild, err)
	}

	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return queue.Snapshot{}, false, fmt.Errorf("decode snapshot for %s: %w", guild, err)
	}
	return snap, true, nil
}

// DeleteSnapshot removes the guild's stored queue.
func (d *DB) DeleteSnapshot(guild snowflake.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	_, err := d.db.Exec("DELETE FROM queue_snapshots WHERE guild_id = ?", guild.String())
	return err
}

// SnapshotGuilds returns the guilds with a stored queue in id order. Rows
// with an unparsable id are skipped.
func (d *DB) SnapshotGuilds() ([]snowflake.ID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.Query("SELECT guild_id FROM queue_snapshots")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []snowflake.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(raw)
		if err != nil {
			log.Warn().Str("guild", raw).Err(err).Msg("Skipping snapshot with invalid guild id")
			continue
		}
		guilds = append(guilds, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Sort(guilds)
	return guilds, nil
}

// SaveTemplate stores a template, replacing one with the same name.
func (d *DB) SaveTemplate(t queue.Template) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return queue.ErrTemplateName
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	t.Name = name
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	_, err = d.db.Exec(`
		INSERT INTO templates (name, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, name, string(data), now, now)
	if err != nil {
		return fmt.Errorf("save template %q: %w", name, err)
	}
	return nil
}

// Template implements queue.TemplateSource.
func (d *DB) Template(name string) (queue.Template, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return queue.Template{}, ErrNotOpen
	}

	var data string
	err := d.db.QueryRow("SELECT data FROM templates WHERE name = ?", strings.TrimSpace(name)).Scan(&data)
	if err == sql.ErrNoRows {
		return queue.Template{}, queue.ErrTemplateNotFound
	}
	if err != nil {
		return queue.Template{}, fmt.Errorf("load template %q: %w", name, err)
	}

	var t queue.Template
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return queue.Template{}, fmt.Errorf("decode template %q: %w", name, err)
	}
	return t, nil
}

// TemplateNames returns the stored template names in alphabetical order.
func (d *DB) TemplateNames() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.Query("SELECT name FROM templates ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
