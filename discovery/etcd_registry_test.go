package discovery

import (
	"testing"
	"time"
)

func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}

	addr1 := PeerAddress{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	addr2 := PeerAddress{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register("arith", addr1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("arith", addr2, 10); err != nil {
		t.Fatal(err)
	}

	addrs, err := reg.Discover("arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expect 2 addresses, got %d", len(addrs))
	}

	if err := reg.Deregister("arith", addr1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	addrs, err = reg.Discover("arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 1 {
		t.Fatalf("expect 1 address after deregister, got %d", len(addrs))
	}
	if addrs[0].Addr != addr2.Addr {
		t.Fatalf("expect %s, got %s", addr2.Addr, addrs[0].Addr)
	}

	reg.Deregister("arith", addr2.Addr)
}
