package storage

import (
	"fmt"
	"strconv"
	"strings"

	"imot-scraper/models"
)

// selectBase lists the columns in the order Select scans them. Text columns
// are coalesced so rows written by other tools with NULLs still scan.
const selectBase = `
SELECT
	source, source_id, title, price, COALESCE(currency, ''),
	price_sqm, area, rooms, COALESCE(floor, ''), COALESCE(construction_type, ''),
	year_built, COALESCE(description, ''), COALESCE(location, ''), COALESCE(district, ''),
	COALESCE(city, ''), COALESCE(url, ''), COALESCE(agency, ''), COALESCE(phone, ''), scraped_at
FROM listings
WHERE LOWER(city) = $1 AND LOWER(district) = $2`

// BuildSelectQuery renders the read-path query for (city, district) plus the
// optional predicate set, all combined with AND, newest rows first.
func BuildSelectQuery(city, district string, f models.Filters) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(selectBase)
	args := []any{strings.ToLower(city), strings.ToLower(district)}

	if f.ApartmentType != "" {
		args = append(args, "%"+strings.ToLower(f.ApartmentType)+"%")
		fmt.Fprintf(&sb, " AND LOWER(title) LIKE $%d", len(args))
	}

	if f.MinArea != nil {
		args = append(args, *f.MinArea)
		fmt.Fprintf(&sb, " AND area >= $%d", len(args))
	}

	if f.Rooms != "" {
		if f.Rooms == "3+" {
			sb.WriteString(" AND rooms >= 3")
		} else {
			n, err := strconv.Atoi(f.Rooms)
			if err != nil {
				return "", nil, fmt.Errorf(`rooms filter must be an integer or "3+", got %q`, f.Rooms)
			}
			args = append(args, n)
			fmt.Fprintf(&sb, " AND rooms = $%d", len(args))
		}
	}

	if f.Balcony {
		sb.WriteString(" AND description ILIKE '%балкон%'")
	}
	if f.NearMetro {
		sb.WriteString(" AND description ILIKE '%метро%'")
	}

	switch strings.ToLower(f.LocationSide) {
	case "":
	case "south":
		sb.WriteString(" AND (description ILIKE '%юг%' OR description ILIKE '%южн%')")
	case "north":
		sb.WriteString(" AND (description ILIKE '%север%' OR description ILIKE '%северн%')")
	default:
		return "", nil, fmt.Errorf(`location side must be "south" or "north", got %q`, f.LocationSide)
	}

	sb.WriteString(" ORDER BY scraped_at DESC")
	return sb.String(), args, nil
}
