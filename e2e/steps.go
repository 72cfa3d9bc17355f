package e2e

import (
	"github.com/cucumber/godog"

	"keepsake/e2e/steps/common"
	"keepsake/e2e/steps/release"
	"keepsake/e2e/steps/vault"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (server check, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register owner-side vault steps
	vault.RegisterSteps(ctx, tc)

	// Register operator and beneficiary release steps
	release.RegisterSteps(ctx, tc)
}
