package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ListenAndServe serves h on every address of host until the context is
// canceled. A host of "*" binds to all local addresses.
func ListenAndServe(ctx context.Context, host string, port int, h http.Handler) error {
	log := logrus.StandardLogger()
	var addrs []net.IPAddr
	if host == "*" {
		addrs = []net.IPAddr{{IP: net.IPv6zero}}
		host = "localhost"
	} else {
		var err error
		rslv := net.DefaultResolver
		addrs, err = rslv.LookupIPAddr(ctx, host)
		if err != nil {
			return fmt.Errorf("could not look up host: %v", err)
		}
		if host == "" {
			host = "localhost"
		}
	}
	s := http.Server{
		Handler:     h,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	var root *url.URL
	errch := make(chan error, len(addrs))
	for _, addr := range addrs {
		ta := net.TCPAddr{
			IP:   addr.IP,
			Zone: addr.Zone,
			Port: port,
		}
		l, err := net.ListenTCP("tcp", &ta)
		if err != nil {
			s.Close()
			return err
		}
		if root == nil {
			root = &url.URL{
				Scheme: "http",
				Host:   net.JoinHostPort(host, strconv.Itoa(port)),
				Path:   "/",
			}
			log.Infoln("Serving on:", root)
		}
		go func(l *net.TCPListener) {
			errch <- s.Serve(l)
		}(l)
	}
	if root == nil {
		return errors.New("no address to serve on")
	}
	select {
	case err := <-errch:
		s.Close()
		return err
	case <-ctx.Done():
		s.Close()
		return nil
	}
}
