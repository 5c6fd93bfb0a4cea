// Package services implements the driving port interfaces.
// HarvestService turns videos, repositories and articles into embedded
// chunks; QueryService retrieves them and asks the language model.
//
// Services depend only on ports, never on concrete adapters.
package services
