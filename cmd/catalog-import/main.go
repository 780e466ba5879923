package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Imports a supplier stock list workbook into the component library.
// Expected columns: STKCODE, ITEMNAME, UNITPRC, MARKUP% (header row first).
// Stock codes follow the "MCB-3P-63A-SCH" convention: class, rating tokens
// and a manufacturer abbreviation separated by dashes.

var ratingToken = regexp.MustCompile(`^\d+[AVP]$`)

var manufacturerNames = map[string]string{
	"SCH":        "Schneider",
	"SCHNEIDER":  "Schneider",
	"ABB":        "ABB",
	"SIE":        "Siemens",
	"SIEMENS":    "Siemens",
	"LEG":        "Legrand",
	"LEGRAND":    "Legrand",
	"HAG":        "Hager",
	"HAGER":      "Hager",
	"GE":         "GE",
	"EATON":      "Eaton",
	"LS":         "LS",
	"MIT":        "Mitsubishi",
	"MITSUBISHI": "Mitsubishi",
}

// parseStockCode pulls class, manufacturer and rating out of a dashed stock
// code. Unknown segments are left in the model number, which stays the full
// code.
func parseStockCode(stkcode string) (itClass string, manufacturer string, rating string) {
	parts := strings.Split(stkcode, "-")
	itClass = "OTHER"
	if len(parts) > 0 && config.IsKnownComponentClass(parts[0]) {
		itClass = strings.ToUpper(parts[0])
	}
	manufacturer = "Unknown"
	var ratings []string
	for _, part := range parts {
		upper := strings.ToUpper(part)
		if name, ok := manufacturerNames[upper]; ok {
			manufacturer = name
			continue
		}
		if ratingToken.MatchString(upper) {
			ratings = append(ratings, upper)
		}
	}
	rating = strings.Join(ratings, " ")
	return itClass, manufacturer, rating
}

func main() {
	file := flag.String("file", "", "Required: path to the stock list workbook (.xlsx)")
	sheet := flag.String("sheet", "", "Optional: sheet name (default: first sheet)")
	limit := flag.Int("limit", 0, "Optional: import at most N rows (0 = all)")
	dryRun := flag.Bool("dry-run", false, "Parse and report without writing")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "usage: catalog-import -file stock_list.xlsx")
		os.Exit(1)
	}

	wb, err := excelize.OpenFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open workbook: %v\n", err)
		os.Exit(1)
	}
	defer wb.Close()

	sheetName := *sheet
	if sheetName == "" {
		sheetName = wb.GetSheetName(0)
	}
	rows, err := wb.GetRows(sheetName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read sheet %q: %v\n", sheetName, err)
		os.Exit(1)
	}
	if len(rows) < 2 {
		fmt.Fprintln(os.Stderr, "sheet has no data rows")
		os.Exit(1)
	}

	// Header row drives column positions.
	columns := map[string]int{}
	for i, h := range rows[0] {
		columns[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	stkcodeCol, ok := columns["STKCODE"]
	if !ok {
		fmt.Fprintln(os.Stderr, "sheet is missing the STKCODE column")
		os.Exit(1)
	}
	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "CatalogImport")

	if !*dryRun {
		config.ConnectDatabaseWithRetry()
		config.ConnectRedisWithRetry()
		if config.GetDB() == nil {
			fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
			os.Exit(1)
		}
		models.MigrateTable()
	}

	imported, skipped, failed := 0, 0, 0
	for _, row := range rows[1:] {
		if *limit > 0 && imported >= *limit {
			break
		}
		if stkcodeCol >= len(row) {
			continue
		}
		stkcode := strings.TrimSpace(row[stkcodeCol])
		if stkcode == "" {
			continue
		}

		itClass, manufacturer, rating := parseStockCode(stkcode)
		itemName := cell(row, "ITEMNAME")
		if itemName == "" {
			itemName = stkcode
		}

		unitPrice := decimal.Zero
		if v := cell(row, "UNITPRC"); v != "" {
			if unitPrice, err = utils.ParseDecimal(v); err != nil {
				fmt.Fprintf(os.Stderr, "row %q: bad unit price %q, skipping\n", stkcode, v)
				failed++
				continue
			}
		}
		markup := decimal.Zero
		if v := cell(row, "MARKUP%"); v != "" {
			if markup, err = utils.ParseDecimal(v); err != nil {
				fmt.Fprintf(os.Stderr, "row %q: bad markup %q, skipping\n", stkcode, v)
				failed++
				continue
			}
		}

		if *dryRun {
			fmt.Printf("%-30s class=%-10s manufacturer=%-12s rating=%-10s price=%s\n",
				stkcode, itClass, manufacturer, rating, unitPrice.String())
			imported++
			continue
		}

		input := models.NewComponent{
			ItemName:     itemName,
			ItemDesc:     "Stock Code: " + stkcode,
			ItClass:      itClass,
			Manufacturer: manufacturer,
			ModelNumber:  stkcode,
			Rating:       rating,
			UnitPrice:    unitPrice,
			MarkupPct:    markup,
			SupplierCode: stkcode,
			Source:       models.ComponentSourceImported,
		}
		if _, err := models.CreateComponent(ctx, &input); err != nil {
			if strings.Contains(err.Error(), "duplicate") {
				skipped++
				continue
			}
			fmt.Fprintf(os.Stderr, "row %q: %v\n", stkcode, err)
			failed++
			continue
		}
		imported++
		if imported%50 == 0 {
			fmt.Printf("Imported %d stock items...\n", imported)
		}
	}

	fmt.Printf("Done. imported=%d skipped=%d failed=%d\n", imported, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
