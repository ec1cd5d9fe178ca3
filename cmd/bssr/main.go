// Command bssr serves an app whose middleware stack is loaded from the plugin, or plugin directory,
// named by BSSR_ENTRY. Declined requests are rendered by the upstream renderer at BSSR_RENDERER_URL.
package main

import "github.com/advdv/bssr/bserve"

func main() {
	bserve.NewApp[bserve.BaseEnvironment]().Run()
}
