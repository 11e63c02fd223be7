package detect

// noData is the sentinel the classifier emits when a prompt contains no
// identifiable private data. It doubles as a stop sequence so empty results
// cost as few output tokens as possible.
const noData = "no-data"

// Header labels the classifier is instructed to omit. Responses are checked
// against these anyway because models occasionally echo the header.
const (
	headerCategory = "DataCategory"
	headerKey      = "Key"
	headerValue    = "Value"
)

const instructions = `You are an assistant in evaluating the private data contained in network requests from apps on a mobile phone.
You consider the following categories of data private data:
Model
OS
DeviceName
Language
TimeZone
UserAgent
Orientation
Carrier
Rooted
Emulator
Width
Height
Roaming
Uptime
RamTotal
RamFree
NetworkConnectionType
SignalStrengthCellular
SignalStrengthWifi
IsCharging
BatteryPercentage
BatteryState
DiskTotal
DiskFree
AccelerometerX
AccelerometerY
AccelerometerZ
RotationX
RotationY
RotationZ
MacAddress
Architecture
DarkMode
LocalIp
Volume
Country
Latitude
Longitude
PublicIP
SDKVersion
AppID
AppVersion
InForeground
CurrentlyViewed

You receive the query string or the payload of a network request as input.
These input could be encoded in different formats such as json, xml, url encoding or other data formats commonly used in requests.

For each key value pair of data that exists in the request you provide the key, value and one data category from above that best matches the category of the key value pair.
You format your output as comma separated values for the following header:
Data Category, Key, Value
You do not include the header line in the output.
You only provide output if you can identify the data categories and the corresponding key value pairs.
Otherwise your only output is: no-data`
