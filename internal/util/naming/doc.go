// Package naming provides consistent naming functions for deployment
// attempts and the provider resources created for them.
//
// Deployment ids follow {scenario}-{yyyymmdd-hhmmss}-{4char}. Resource
// containers are {prefix}-{deploymentId}, so container names are unique as
// long as ids are. The random suffix breaks ties between attempts started
// in the same second.
package naming
