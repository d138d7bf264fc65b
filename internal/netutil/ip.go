package netutil

import "net"

// LocalIP returns the LAN address a device on the same network should use to
// reach this machine. It prefers the interface the OS routes outbound traffic
// through and falls back to scanning interface addresses. Returns 127.0.0.1
// when no candidate is found.
func LocalIP() string {
	if ip := preferredOutboundIP(); ip != "" {
		return ip
	}
	if ip := firstInterfaceIPv4(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

// preferredOutboundIP asks the OS routing table which local address outbound
// traffic would use. Dialing UDP sends no packets.
func preferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// firstInterfaceIPv4 returns the first non-loopback IPv4 address on any
// interface.
func firstInterfaceIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return ""
}
