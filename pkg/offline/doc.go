// Package offline implements the Meridian Mastery offline cache manager.
//
// A Manager is one version of the cache. Its lifecycle follows a service
// worker: install (precache the manifest), wait, activate (delete older
// namespaces, sweep, claim clients) and then answer fetches. Each GET is
// classified and served network-first or cache-first; everything else goes
// straight to the network.
//
// A Controller hosts successive versions, swaps the active one atomically
// and exposes it as an http.Handler in front of the application origin.
//
// Usage:
//
//	fetcher, _ := network.New(network.DefaultConfig("meridian-offline/1.0"))
//	ctrl := offline.NewController(fetcher)
//
//	m, err := offline.New(offline.DefaultConfig(store.NewMemoryStore(), fetcher, "https://meridian.example", "v3"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ctrl.Register(ctx, m); err != nil {
//	    log.Fatal(err)
//	}
//
//	origin, _ := url.Parse("https://meridian.example")
//	http.ListenAndServe(":8080", ctrl.Handler(origin))
package offline
