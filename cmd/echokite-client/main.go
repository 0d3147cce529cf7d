// Command echokite-client calls the echokite server over plain HTTP, then
// opens a WebSocket to the same server and becomes a bidirectional peer on
// it: it issues "square" itself and serves "kite.log" for the server to
// call back on, using a Router exactly as the server does.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"

	rpc "github.com/doxysoft/jsonrpc-bidirectional"
	"github.com/doxysoft/jsonrpc-bidirectional/auth"
)

func main() {
	httpURL := flag.String("url", "http://localhost:7777/echo", "echokite HTTP endpoint")
	wsURL := flag.String("ws", "ws://localhost:7777/echo/ws", "echokite WebSocket endpoint")
	flag.Parse()

	httpClient := rpc.NewClient()
	httpClient.AddPlugin(rpc.NewHTTPTransport(*httpURL).Plugin())

	result, err := httpClient.Call(context.Background(), "echo", []interface{}{"hello"})
	if err != nil {
		log.Fatalf("echo call failed: %s", err)
	}
	fmt.Printf("echo replied: %s\n", result)

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("bad ws url: %s", err)
	}

	conn, err := rpc.DialWSConn(*wsURL)
	if err != nil {
		log.Fatalf("dial failed: %s", err)
	}

	peer := rpc.NewServer()
	peer.AddPlugin(auth.AllowAll())

	ep := rpc.NewEndpoint("echokite-client", u.Path)
	ep.ReverseClientFactory = func() *rpc.Client { return rpc.NewClient() }
	ep.HandleFunc("kite.log", func(r *rpc.IncomingRequest, params rpc.Params) (interface{}, error) {
		var msg string
		if err := params.Arg(0, &msg); err != nil {
			return nil, rpc.InvalidParamsError(err.Error())
		}
		fmt.Println("server log:", msg)
		return nil, nil
	})
	if err := peer.Registry.Register(ep); err != nil {
		log.Fatal(err)
	}

	router := rpc.NewRouter(peer)
	rc := router.AddConnection(conn)

	reverse, ok := router.ReverseClient(rc.ConnectionID, u.Path)
	if !ok {
		log.Fatal("no reverse client for endpoint")
	}

	squared, err := reverse.Call(context.Background(), "square", []interface{}{7})
	if err != nil {
		log.Fatalf("square call failed: %s", err)
	}
	fmt.Printf("square replied: %s\n", squared)
}
