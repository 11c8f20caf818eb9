package metricdb

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type dialect struct {
	dateType     string
	insertIgnore string
}

func dialectFor(driver string) dialect {
	switch driver {
	case "mysql":
		return dialect{dateType: "DATETIME", insertIgnore: "INSERT IGNORE INTO"}
	default:
		// sqlite keeps dates as text so every driver scans the same layout
		return dialect{dateType: "TEXT", insertIgnore: "INSERT OR IGNORE INTO"}
	}
}

func CreateSchema(db *sqlx.DB) error {
	d := dialectFor(db.DriverName())

	columns := make([]string, 0, len(Columns()))
	for _, c := range Columns() {
		columns = append(columns, fmt.Sprintf("\t\t\t%s BIGINT,", c))
	}

	for _, statement := range []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS revisions (
			revision BIGINT NOT NULL,
			date     %s NOT NULL,

			PRIMARY KEY(revision)
		)`, d.dateType),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS metrics (
			revision BIGINT NOT NULL,
%s

			PRIMARY KEY(revision),
			FOREIGN KEY(revision) REFERENCES revisions(revision)
		)`, strings.Join(columns, "\n")),
	} {
		if _, err := db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}
