// Package profile ships named, reusable schema bundles for common domains,
// grounded on the original implementation's hard-coded software-delivery
// profile.
package profile

import "github.com/sag-project/sag/pkg/sag/schema"

// SoftwareDev returns a schema.Registry pre-populated with verbs for a
// small software-delivery workflow: deploy, rollback, run_tests, open_pr,
// merge_pr.
func SoftwareDev() *schema.Registry {
	reg := schema.NewRegistry()

	reg.Register(schema.NewVerbSchema("deploy").
		Positional(schema.Arg("service", schema.TypeString).RequiredArg()).
		Named(schema.Arg("version", schema.TypeInteger).RequiredArg()).
		Named(schema.Arg("environment", schema.TypeString).
			WithAllowedValues("staging", "production")).
		Build())

	reg.Register(schema.NewVerbSchema("rollback").
		Positional(schema.Arg("service", schema.TypeString).RequiredArg()).
		Named(schema.Arg("to_version", schema.TypeInteger).RequiredArg()).
		Build())

	reg.Register(schema.NewVerbSchema("run_tests").
		Positional(schema.Arg("suite", schema.TypeString).RequiredArg()).
		Named(schema.Arg("timeout_seconds", schema.TypeInteger).WithRange(1, 3600)).
		Build())

	reg.Register(schema.NewVerbSchema("open_pr").
		Positional(schema.Arg("branch", schema.TypeString).RequiredArg()).
		Named(schema.Arg("title", schema.TypeString).RequiredArg()).
		Named(schema.Arg("description", schema.TypeString)).
		Build())

	reg.Register(schema.NewVerbSchema("merge_pr").
		Positional(schema.Arg("pr_number", schema.TypeInteger).RequiredArg()).
		Named(schema.Arg("squash", schema.TypeBoolean)).
		Build())

	return reg
}

// Named resolves a profile by name. It returns false for an unknown name so
// config loading can report a clear error instead of silently building an
// empty registry.
func Named(name string) (*schema.Registry, bool) {
	switch name {
	case "software_dev":
		return SoftwareDev(), true
	default:
		return nil, false
	}
}
