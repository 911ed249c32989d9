//go:build ignore

// Seeds a demo region/camera layout for local development.
// Usage: go run scripts/seed_demo_data.go
package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	host := getenv("DB_HOST", "localhost")
	user := getenv("DB_USER", "postgres")
	pass := os.Getenv("DB_PASSWORD")
	name := getenv("DB_NAME", "crosscount")

	db, err := sql.Open("postgres", fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s sslmode=disable", host, user, pass, name))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	regions := []struct {
		name      string
		occupancy int
		cameras   []string
	}{
		{"Main Atrium", 150, []string{"Atrium-North", "Atrium-South"}},
		{"Food Court", 120, []string{"FoodCourt-Entry", "FoodCourt-Exit"}},
		{"Parking Level 1", 80, []string{"P1-Ramp"}},
	}

	for _, r := range regions {
		var regionID int
		err := db.QueryRow(`
			INSERT INTO regions (name, occupancy) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET occupancy = EXCLUDED.occupancy
			RETURNING id`, r.name, r.occupancy).Scan(&regionID)
		if err != nil {
			panic(err)
		}
		for _, cam := range r.cameras {
			_, err := db.Exec(`
				INSERT INTO cameras (name, status, region_id) VALUES ($1, true, $2)
				ON CONFLICT (name) DO UPDATE SET region_id = EXCLUDED.region_id, status = true`,
				cam, regionID)
			if err != nil {
				panic(err)
			}
			fmt.Printf("seeded camera %q in region %q (id=%d)\n", cam, r.name, regionID)
		}
	}
	fmt.Println("done")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
