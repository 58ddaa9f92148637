// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Prompt index tables (rebuilt by the reconciler)
		{
			ID: "001_prompt_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Prompt{}, &Subcategory{}, &Variable{}, &PromptFragment{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("prompt_fragments", "variables", "subcategories", "prompts")
			},
		},

		// Migration 002: Environment variables
		{
			ID: "002_env_variables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&EnvVariable{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("env_variables")
			},
		},

		// Migration 003: FTS5 virtual table for prompts
		{
			ID: "003_prompts_fts",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE VIRTUAL TABLE IF NOT EXISTS prompts_fts USING fts5(
						title, one_line_description, description, body,
						content='prompts',
						content_rowid='id'
					)`,
					`CREATE TRIGGER IF NOT EXISTS prompts_ai AFTER INSERT ON prompts BEGIN
						INSERT INTO prompts_fts(rowid, title, one_line_description, description, body)
						VALUES (new.id, new.title, new.one_line_description, new.description, new.body);
					END`,
					`CREATE TRIGGER IF NOT EXISTS prompts_ad AFTER DELETE ON prompts BEGIN
						INSERT INTO prompts_fts(prompts_fts, rowid, title, one_line_description, description, body)
						VALUES('delete', old.id, old.title, old.one_line_description, old.description, old.body);
					END`,
					`CREATE TRIGGER IF NOT EXISTS prompts_au AFTER UPDATE ON prompts BEGIN
						INSERT INTO prompts_fts(prompts_fts, rowid, title, one_line_description, description, body)
						VALUES('delete', old.id, old.title, old.one_line_description, old.description, old.body);
						INSERT INTO prompts_fts(rowid, title, one_line_description, description, body)
						VALUES (new.id, new.title, new.one_line_description, new.description, new.body);
					END`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP TRIGGER IF EXISTS prompts_au",
					"DROP TRIGGER IF EXISTS prompts_ad",
					"DROP TRIGGER IF EXISTS prompts_ai",
					"DROP TABLE IF EXISTS prompts_fts",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},

		// Migration 004: Favorites and execution history, keyed by prompt UUID
		{
			ID: "004_favorites_executions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Favorite{}, &Execution{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("executions", "favorites")
			},
		},
	})

	return m.Migrate()
}
