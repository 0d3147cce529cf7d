// Command echokite is a minimal server exercising both sides of this
// module: plain HTTP for a one-shot "echo" call, and WebSocket for a
// bidirectional connection where the server calls "kite.log" back on
// whichever client is currently connected.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	rpc "github.com/doxysoft/jsonrpc-bidirectional"
	"github.com/doxysoft/jsonrpc-bidirectional/auth"
)

func main() {
	addr := flag.String("addr", ":7777", "address to listen on")
	flag.Parse()

	srv := rpc.NewServer()
	srv.AddPlugin(auth.AllowAll())

	echo := rpc.NewEndpoint("echo", "/echo")
	echo.HandleFunc("echo", func(r *rpc.IncomingRequest, params rpc.Params) (interface{}, error) {
		var arg string
		if err := params.Arg(0, &arg); err != nil {
			return nil, rpc.InvalidParamsError(err.Error())
		}
		return arg, nil
	})
	if err := srv.Registry.Register(echo); err != nil {
		log.Fatal(err)
	}

	bidi := rpc.NewEndpoint("echo-bidi", "/echo/ws")
	bidi.ReverseClientFactory = func() *rpc.Client {
		return rpc.NewClient()
	}
	bidi.HandleFunc("square", func(r *rpc.IncomingRequest, params rpc.Params) (interface{}, error) {
		var n int
		if err := params.Arg(0, &n); err != nil {
			return nil, rpc.InvalidParamsError(err.Error())
		}
		result := n * n
		if r.ReverseClient != nil {
			go r.ReverseClient.Notify("kite.log", fmt.Sprintf("squared %d -> %d", n, result))
		}
		return result, nil
	})
	if err := srv.Registry.Register(bidi); err != nil {
		log.Fatal(err)
	}

	router := rpc.NewRouter(srv)

	mr := mux.NewRouter()
	rpc.Mount(mr, "/echo", srv)
	mr.HandleFunc("/echo/ws", rpc.UpgradeHandler(router, nil))

	log.Printf("echokite listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mr))
}
