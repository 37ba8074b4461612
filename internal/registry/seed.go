package registry

import (
	"context"
	"fmt"
)

const seedPassword = "password123"

type seedProject struct {
	request RegisterProjectRequest
	price   float64
}

var seedProjects = []seedProject{
	{
		request: RegisterProjectRequest{
			Name:             "Kerala Mangrove Conservation",
			Description:      "Large-scale mangrove restoration project along the Kerala coastline",
			ProjectType:      ProjectTypeMangrove,
			Area:             250,
			Latitude:         11.0168,
			Longitude:        76.9558,
			Location:         "Kochi, Kerala, India",
			EstimatedCredits: 125,
			SatelliteImagery: &SatelliteImagery{Before: "mangrove_before.jpg", After: "mangrove_after.jpg"},
		},
		price: 17.50,
	},
	{
		request: RegisterProjectRequest{
			Name:             "Goa Seagrass Protection",
			Description:      "Seagrass bed conservation and restoration in Goa coastal waters",
			ProjectType:      ProjectTypeSeagrass,
			Area:             180,
			Latitude:         15.2993,
			Longitude:        74.1240,
			Location:         "Panaji, Goa, India",
			EstimatedCredits: 78,
			SatelliteImagery: &SatelliteImagery{Before: "seagrass_before.jpg", After: "seagrass_after.jpg"},
		},
		price: 19.25,
	},
	{
		request: RegisterProjectRequest{
			Name:             "Sundarbans Salt Marsh",
			Description:      "Salt marsh restoration in the Sundarbans delta region",
			ProjectType:      ProjectTypeSaltMarsh,
			Area:             320,
			Latitude:         21.9497,
			Longitude:        89.1833,
			Location:         "West Bengal, India",
			EstimatedCredits: 203,
			SatelliteImagery: &SatelliteImagery{Before: "saltmarsh_before.jpg", After: "saltmarsh_after.jpg"},
		},
		price: 16.75,
	},
}

// Seed loads the demo registry: a developer and a buyer, three verified
// projects each minted with their estimated credits, and telemetry for the
// first project. It goes through the service so every record is validated
// and every mint lands in the ledger.
func Seed(ctx context.Context, svc Service) error {
	developer, err := svc.RegisterUser(ctx, &RegisterUserRequest{
		Username:      "developer1",
		Password:      seedPassword,
		WalletAddress: StringPtr("0x1234567890123456789012345678901234567890"),
		Role:          UserRoleDeveloper,
	})
	if err != nil {
		return fmt.Errorf("seed developer: %w", err)
	}
	if _, err := svc.RegisterUser(ctx, &RegisterUserRequest{
		Username:      "buyer1",
		Password:      seedPassword,
		WalletAddress: StringPtr("0x0987654321098765432109876543210987654321"),
		Role:          UserRoleUser,
	}); err != nil {
		return fmt.Errorf("seed buyer: %w", err)
	}

	var first *Project
	for _, sp := range seedProjects {
		req := sp.request
		req.DeveloperID = developer.ID
		req.VerificationDocuments = map[string]bool{"eia": true, "baseline": true, "community": true, "government": true}

		project, err := svc.RegisterProject(ctx, &req)
		if err != nil {
			return fmt.Errorf("seed project %q: %w", req.Name, err)
		}
		if project, err = svc.VerifyProject(ctx, project.ID, DecisionApprove); err != nil {
			return fmt.Errorf("seed verify %q: %w", req.Name, err)
		}
		if _, err := svc.MintCredits(ctx, &MintCreditsRequest{
			ProjectID:      project.ID,
			Amount:         project.EstimatedCredits,
			PricePerCredit: sp.price,
			OwnerID:        developer.ID,
		}); err != nil {
			return fmt.Errorf("seed credits %q: %w", req.Name, err)
		}
		if first == nil {
			first = project
		}
	}

	readings := []struct {
		sensorType SensorType
		value      float64
		unit       string
		metadata   map[string]any
	}{
		{SensorTypeCO2, 2.3, "t/ha/yr", map[string]any{"device_id": "CO2-001", "accuracy": "±0.1"}},
		{SensorTypeBiomass, 145.6, "t/ha", map[string]any{"device_id": "BIO-001", "accuracy": "±5%"}},
		{SensorTypeSoilCarbon, 89.2, "%", map[string]any{"device_id": "SOIL-001", "depth": "30cm"}},
	}
	for _, r := range readings {
		if _, err := svc.RecordSensorReading(ctx, &RecordSensorReadingRequest{
			ProjectID:  first.ID,
			SensorType: r.sensorType,
			Value:      FloatPtr(r.value),
			Unit:       r.unit,
			Latitude:   FloatPtr(first.Latitude),
			Longitude:  FloatPtr(first.Longitude),
			Metadata:   r.metadata,
		}); err != nil {
			return fmt.Errorf("seed %s reading: %w", r.sensorType, err)
		}
	}
	return nil
}
