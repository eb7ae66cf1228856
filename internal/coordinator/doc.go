// Package coordinator keeps a dashboard session alive by refreshing its access
// token through a single-flight refresh cycle.
//
// A Coordinator guarantees that at most one refresh request is in flight at a
// time. Callers that ask for a refresh while one is running either join it
// (RefreshToken) or park in a bounded queue that is drained when the refresh
// settles (QueueTokenRefresh). Refresh starts are rate limited by a cooldown that
// also applies after failures, and a failed refresh clears the stored
// credentials and sends the user back to the login entry point.
//
// The Coordinator implements oauth2.TokenSource, so it can back an oauth2.Transport:
//
//	c, err := coordinator.New(client, store, coordinator.WithNavigator(nav))
//	httpClient := &http.Client{Transport: &oauth2.Transport{Source: c}}
package coordinator
