package tsframe

// PacketType groups PIDs by the table or stream kind they carry.
type PacketType int

const (
	PacketNone PacketType = iota
	PacketProgramAssociation
	PacketConditionalAccess
	PacketReserved
	PacketNetworkInformation
	PacketServiceDescription
	PacketEventInformation
	PacketRunningStatus
	PacketTimeDate
	PacketAudioVideoPrivate
)

// NullPID is the sentinel PID used for "no stream". It is outside the 13-bit
// PID space and always classifies as PacketNone.
const NullPID = 0xffff

type pidRange struct {
	lo, hi uint16
	typ    PacketType
}

// Ordered; the first containing range wins.
var pidRanges = []pidRange{
	{0x0000, 0x0000, PacketProgramAssociation},
	{0x0001, 0x0001, PacketConditionalAccess},
	{0x0002, 0x000f, PacketReserved},
	{0x0010, 0x0010, PacketNetworkInformation},
	{0x0011, 0x0011, PacketServiceDescription},
	{0x0012, 0x0012, PacketEventInformation},
	{0x0013, 0x0013, PacketRunningStatus},
	{0x0014, 0x0014, PacketTimeDate},
	{0x0015, 0x001f, PacketReserved},
	{0x0020, 0x1ffe, PacketAudioVideoPrivate},
	{NullPID, NullPID, PacketNone},
}

// Classify maps a PID to its packet type. PIDs outside every known range,
// including the 0x1fff null packet, are PacketNone.
func Classify(pid uint16) PacketType {
	for _, r := range pidRanges {
		if pid >= r.lo && pid <= r.hi {
			return r.typ
		}
	}
	return PacketNone
}

func (t PacketType) String() string {
	switch t {
	case PacketProgramAssociation:
		return "PAT"
	case PacketConditionalAccess:
		return "CAT"
	case PacketReserved:
		return "reserved"
	case PacketNetworkInformation:
		return "NIT"
	case PacketServiceDescription:
		return "SDT"
	case PacketEventInformation:
		return "EIT"
	case PacketRunningStatus:
		return "RST"
	case PacketTimeDate:
		return "TDT"
	case PacketAudioVideoPrivate:
		return "av/private"
	default:
		return "none"
	}
}
