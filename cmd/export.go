package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imot-scraper/config"
	"imot-scraper/models"
	"imot-scraper/services"
	"imot-scraper/storage"
	"imot-scraper/utils"
)

var (
	exportCity      string
	exportDistrict  string
	exportKeyword   string
	exportAptType   string
	exportMinArea   float64
	exportRooms     string
	exportBalcony   bool
	exportNearMetro bool
	exportSide      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored listings to a filtered CSV artifact",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportCity, "city", "sofia", "city name")
	exportCmd.Flags().StringVar(&exportDistrict, "district", "", "normalized district slug")
	exportCmd.Flags().StringVar(&exportKeyword, "keyword", "", `apartment-type keyword; "all" disables the filter`)
	exportCmd.Flags().StringVar(&exportAptType, "apartment-type", "", "substring match on the listing title")
	exportCmd.Flags().Float64Var(&exportMinArea, "min-area", 0, "minimum area in square meters")
	exportCmd.Flags().StringVar(&exportRooms, "rooms", "", `exact room count, or "3+" for three or more`)
	exportCmd.Flags().BoolVar(&exportBalcony, "balcony", false, "only listings mentioning a balcony")
	exportCmd.Flags().BoolVar(&exportNearMetro, "near-metro", false, "only listings mentioning the metro")
	exportCmd.Flags().StringVar(&exportSide, "side", "", `location side: "south" or "north"`)
	_ = exportCmd.MarkFlagRequired("district")
}

func runExport(cmd *cobra.Command, _ []string) error {
	log, err := utils.NewLogger(debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgres(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	filters := models.Filters{
		ApartmentType: exportAptType,
		Rooms:         exportRooms,
		Balcony:       exportBalcony,
		NearMetro:     exportNearMetro,
		LocationSide:  exportSide,
	}
	if cmd.Flags().Changed("min-area") {
		filters.MinArea = &exportMinArea
	}

	exporter := services.NewExporter(store, cfg.ExportDir, log)
	path, err := exporter.Export(ctx, exportCity, exportDistrict, exportKeyword, filters)
	if errors.Is(err, storage.ErrEmptyResult) {
		return fmt.Errorf("no listings matched city=%s district=%s with the given filters", exportCity, exportDistrict)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Export written: %s\n", path)
	return nil
}
